// Package inference wraps the local text-generation backend. The backend is a
// single shared, stateful resource: it serves one request at a time and the
// loaded model can change between calls. All access goes through Service,
// which serializes calls behind a single-flight gate.
package inference

import (
	"context"
	"time"
)

// ModelTier selects which configured model a call should use. Swapping tiers
// mid-stream is supported but serializes behind the gate like any other call.
type ModelTier string

const (
	// TierDensity is the model used for per-sentence complexity scoring.
	TierDensity ModelTier = "density"
	// TierSummary is the model used for subchapter title/summary generation.
	TierSummary ModelTier = "summary"
)

// CompletionRequest is a single text-completion call.
type CompletionRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the reply from a completion call.
type CompletionResult struct {
	Text             string
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Duration         time.Duration
}

// TokenLogprob is one scored token from a forward pass.
type TokenLogprob struct {
	Token   string
	Logprob float64
}

// Client is the transport to an inference backend. Implementations must be
// safe for use from a single goroutine at a time; the Service's gate provides
// that discipline.
type Client interface {
	// Complete runs one text completion. Slow (seconds) and fallible.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// ScoreTokens runs a forward pass over prompt and returns per-token
	// logprobs, for the token-probability density estimator.
	ScoreTokens(ctx context.Context, prompt, model string) ([]TokenLogprob, error)

	// Name returns the client identifier (e.g. "openai", "mock").
	Name() string
}
