package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Service owns access to the inference backend: which model is loaded, the
// single-flight gate, and request pacing. Consumers (density analyzer,
// summarizer, scheduler) receive a *Service by injection; nothing in the
// process reaches the backend around it.
type Service struct {
	client  Client
	gate    *Gate
	limiter *RateLimiter
	logger  *slog.Logger

	mu          sync.Mutex
	models      map[ModelTier]string
	loadedModel string
}

// ServiceConfig configures a new Service.
type ServiceConfig struct {
	Client            Client
	Models            map[ModelTier]string // tier -> model identifier
	RequestsPerMinute int
	Logger            *slog.Logger
}

// NewService creates a Service wrapping the given client.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("inference client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	models := make(map[ModelTier]string, len(cfg.Models))
	for tier, model := range cfg.Models {
		models[tier] = model
	}

	return &Service{
		client:  cfg.Client,
		gate:    NewGate(),
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		logger:  logger.With("component", "inference"),
		models:  models,
	}, nil
}

// Gate exposes the single-flight gate so the scheduler can observe it.
func (s *Service) Gate() *Gate {
	return s.gate
}

// EnsureModel resolves the model identifier for a tier and records it as the
// model the next gated call will load. The swap itself happens on the backend
// when the call executes; because all calls serialize behind the gate, a swap
// never interleaves with another tier's request.
func (s *Service) EnsureModel(tier ModelTier) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	model, ok := s.models[tier]
	if !ok || model == "" {
		// Fall back to any configured model so a missing tier degrades
		// to answering with whatever is loaded.
		for _, m := range s.models {
			model = m
			break
		}
	}
	return model
}

// SetModel overrides the model identifier for a tier (config hot reload).
func (s *Service) SetModel(tier ModelTier, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[tier] = model
}

// Complete runs one gated completion using the tier's model.
func (s *Service) Complete(ctx context.Context, tier ModelTier, req CompletionRequest) (*CompletionResult, error) {
	if req.Model == "" {
		req.Model = s.EnsureModel(tier)
	}

	var result *CompletionResult
	err := s.gate.Do(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		s.noteModelSwap(req.Model)

		var callErr error
		result, callErr = s.client.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScoreTokens runs one gated forward pass using the tier's model.
func (s *Service) ScoreTokens(ctx context.Context, tier ModelTier, prompt string) ([]TokenLogprob, error) {
	model := s.EnsureModel(tier)

	var out []TokenLogprob
	err := s.gate.Do(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		s.noteModelSwap(model)

		var callErr error
		out, callErr = s.client.ScoreTokens(ctx, prompt, model)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) noteModelSwap(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadedModel != model {
		if s.loadedModel != "" {
			s.logger.Info("model swap", "from", s.loadedModel, "to", model)
		}
		s.loadedModel = model
	}
}

// LoadedModel reports the model identifier of the most recent gated call.
func (s *Service) LoadedModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedModel
}
