package inference

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T, client Client) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Client: client,
		Models: map[ModelTier]string{
			TierDensity: "scorer-8b",
			TierSummary: "writer-3b",
		},
		RequestsPerMinute: 100000, // effectively unlimited in tests
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestService_SerializesBackendCalls(t *testing.T) {
	mock := NewMockClient()
	mock.Latency = 2 * time.Millisecond
	svc := newTestService(t, mock)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		tier := TierDensity
		if i%2 == 1 {
			tier = TierSummary
		}
		go func(tier ModelTier) {
			defer wg.Done()
			if _, err := svc.Complete(ctx, tier, CompletionRequest{Prompt: "p"}); err != nil {
				t.Errorf("Complete failed: %v", err)
			}
		}(tier)
	}
	wg.Wait()

	if got := mock.MaxConcurrent(); got != 1 {
		t.Errorf("expected backend concurrency 1, observed %d", got)
	}
	if got := mock.RequestCount(); got != 8 {
		t.Errorf("expected 8 requests, got %d", got)
	}
}

func TestService_EnsureModelPerTier(t *testing.T) {
	svc := newTestService(t, NewMockClient())

	if got := svc.EnsureModel(TierDensity); got != "scorer-8b" {
		t.Errorf("density tier: got %q", got)
	}
	if got := svc.EnsureModel(TierSummary); got != "writer-3b" {
		t.Errorf("summary tier: got %q", got)
	}

	svc.SetModel(TierSummary, "writer-7b")
	if got := svc.EnsureModel(TierSummary); got != "writer-7b" {
		t.Errorf("after SetModel: got %q", got)
	}
}

func TestService_TracksLoadedModel(t *testing.T) {
	mock := NewMockClient()
	svc := newTestService(t, mock)
	ctx := context.Background()

	if _, err := svc.Complete(ctx, TierDensity, CompletionRequest{Prompt: "a"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got := svc.LoadedModel(); got != "scorer-8b" {
		t.Errorf("expected scorer-8b loaded, got %q", got)
	}

	if _, err := svc.Complete(ctx, TierSummary, CompletionRequest{Prompt: "b"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got := svc.LoadedModel(); got != "writer-3b" {
		t.Errorf("expected writer-3b loaded after swap, got %q", got)
	}
}
