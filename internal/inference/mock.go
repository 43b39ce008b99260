package inference

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a Client for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int    // Fail after N requests (0 = never)
	ResponseText string // Default reply

	// Responses maps a prompt substring to a canned reply. Checked before
	// ResponseText so tests can answer density and summary prompts differently.
	Responses map[string]string

	// Logprobs returned by ScoreTokens.
	Logprobs []TokenLogprob

	// State
	requestCount atomic.Int64
	concurrent   atomic.Int64
	maxSeen      atomic.Int64

	mu      sync.Mutex
	prompts []string
}

// NewMockClient creates a mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "{}",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Complete returns the canned reply matching the prompt, tracking observed
// concurrency so gate tests can assert single-flight behavior.
func (c *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	n := c.concurrent.Add(1)
	defer c.concurrent.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if n <= seen || c.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.prompts = append(c.prompts, req.Prompt)
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.ShouldFail || (c.FailAfter > 0 && count > int64(c.FailAfter)) {
		return nil, fmt.Errorf("mock failure on request %d", count)
	}

	text := c.ResponseText
	for needle, reply := range c.Responses {
		if strings.Contains(req.Prompt, needle) {
			text = reply
			break
		}
	}

	return &CompletionResult{
		Text:             text,
		ModelUsed:        req.Model,
		PromptTokens:     len(strings.Fields(req.Prompt)),
		CompletionTokens: len(strings.Fields(text)),
		TotalTokens:      len(strings.Fields(req.Prompt)) + len(strings.Fields(text)),
		Duration:         c.Latency,
	}, nil
}

// ScoreTokens returns the configured logprobs.
func (c *MockClient) ScoreTokens(ctx context.Context, prompt, model string) ([]TokenLogprob, error) {
	if c.ShouldFail {
		return nil, fmt.Errorf("mock failure")
	}
	return c.Logprobs, nil
}

// RequestCount reports how many Complete calls were made.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// MaxConcurrent reports the highest number of simultaneous Complete calls observed.
func (c *MockClient) MaxConcurrent() int {
	return int(c.maxSeen.Load())
}

// Prompts returns a copy of all prompts received, in order.
func (c *MockClient) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}
