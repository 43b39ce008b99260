package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const OpenAIClientName = "openai"

// OpenAIConfig holds configuration for the OpenAI-compatible backend client.
// BaseURL typically points at a local inference server (llama-server, vLLM,
// LM Studio) exposing the OpenAI chat completions API.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIClient implements Client against any OpenAI-compatible server.
type OpenAIClient struct {
	client     openai.Client
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// NewOpenAIClient creates a new backend client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIClient{
		client:     openai.NewClient(opts...),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIClientName
}

// Complete runs one chat completion against the backend.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	var resp *openai.ChatCompletion
	err := retry.Do(
		func() error {
			var callErr error
			resp, callErr = c.client.Chat.Completions.New(ctx, params)
			return mapBackendError(callErr)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	return &CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		ModelUsed:        resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		Duration:         time.Since(start),
	}, nil
}

// ScoreTokens runs a forward pass and returns per-token logprobs.
func (c *OpenAIClient) ScoreTokens(ctx context.Context, prompt, model string) ([]TokenLogprob, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Logprobs:  openai.Bool(true),
		MaxTokens: openai.Int(1),
	}

	var resp *openai.ChatCompletion
	err := retry.Do(
		func() error {
			var callErr error
			resp, callErr = c.client.Chat.Completions.New(ctx, params)
			return mapBackendError(callErr)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	content := resp.Choices[0].Logprobs.Content
	out := make([]TokenLogprob, 0, len(content))
	for _, tl := range content {
		out = append(out, TokenLogprob{Token: tl.Token, Logprob: tl.Logprob})
	}
	return out, nil
}

// mapBackendError marks client errors (4xx other than 429) unrecoverable so
// retry.Do does not waste attempts on them.
func mapBackendError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return fmt.Errorf("backend error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return retry.Unrecoverable(fmt.Errorf("backend error (status %d): %s", apiErr.StatusCode, apiErr.Message))
	}
	return err
}
