package enrich

import (
	"context"
	"strings"
	"testing"

	"github.com/cadence-reader/cadence/internal/inference"
)

func newService(t *testing.T, mock *inference.MockClient) *inference.Service {
	t.Helper()
	svc, err := inference.NewService(inference.ServiceConfig{
		Client: mock,
		Models: map[inference.ModelTier]string{
			inference.TierDensity: "scorer",
			inference.TierSummary: "writer",
		},
		RequestsPerMinute: 100000,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestAnalyzeDensityRange_BackendFailureIsNeutral(t *testing.T) {
	mock := inference.NewMockClient()
	mock.ShouldFail = true
	a := NewAnalyzer(newService(t, mock), nil)

	words := strings.Fields("This is a simple sentence.")
	out := a.AnalyzeDensityRange(context.Background(), strings.Join(words, " "), words)

	if len(out) != len(words) {
		t.Fatalf("expected %d densities, got %d", len(words), len(out))
	}
	for i, d := range out {
		if d != 1.0 {
			t.Errorf("density[%d] = %v, want 1.0", i, d)
		}
	}
}

func TestAnalyzeDensityRange_TruncatedReply(t *testing.T) {
	mock := inference.NewMockClient()
	// Truncated generation: closing brace missing.
	mock.ResponseText = `{"a b c d e": 5, "f g h i j": 2`
	a := NewAnalyzer(newService(t, mock), nil)

	words := strings.Fields("A b c d e. F g h i j.")
	if len(words) != 10 {
		t.Fatalf("test input should be 10 words, got %d", len(words))
	}
	out := a.AnalyzeDensityRange(context.Background(), strings.Join(words, " "), words)

	if len(out) != 10 {
		t.Fatalf("expected 10 densities, got %d", len(out))
	}

	var first, second float64
	for i := 0; i < 5; i++ {
		first += out[i]
		second += out[i+5]
	}
	if second >= first {
		t.Errorf("second sentence (score 2) should be lower density: first=%v second=%v", first, second)
	}
}

func TestAnalyzeDensityRange_ClampAndZero(t *testing.T) {
	mock := inference.NewMockClient()
	mock.ResponseText = `{"dense words stay in bounds": 10, "12 junk fragment here now": 0}`
	a := NewAnalyzer(newService(t, mock), nil)

	words := strings.Fields("Dense, words stay in bounds! [12] junk fragment here now.")
	out := a.AnalyzeDensityRange(context.Background(), strings.Join(words, " "), words)

	if len(out) != len(words) {
		t.Fatalf("expected %d densities, got %d", len(words), len(out))
	}
	for i, d := range out[:5] {
		if d < 0.5 || d > 5.0 {
			t.Errorf("density[%d] = %v, outside [0.5, 5.0]", i, d)
		}
	}
	// Junk sentence: exact zero despite terminal punctuation on "now."
	for i, d := range out[5:] {
		if d != 0 {
			t.Errorf("junk density[%d] = %v, want 0", i+5, d)
		}
	}
}

func TestAnalyzeDensityRange_StructuralMultipliers(t *testing.T) {
	mock := inference.NewMockClient()
	mock.ResponseText = `{"this is a simple sentence": 5, "it is easy to read": 5}`
	a := NewAnalyzer(newService(t, mock), nil)

	words := strings.Fields("This is a simple sentence. It is easy to read.")
	out := a.AnalyzeDensityRange(context.Background(), strings.Join(words, " "), words)

	if len(out) != 9 {
		t.Fatalf("expected 9 densities, got %d", len(out))
	}
	// Terminal punctuation multiplier dominates: "read." >= "This".
	if out[8] < out[0] {
		t.Errorf("final word density %v < first word %v", out[8], out[0])
	}
	// "sentence." also ends a sentence.
	if out[4] < 2.9 {
		t.Errorf("expected ~3.0 for sentence-final word, got %v", out[4])
	}
}

func TestAnalyzeDensityRange_UnknownScoresDefaultNeutral(t *testing.T) {
	mock := inference.NewMockClient()
	mock.ResponseText = `{"completely different keys": 9}`
	a := NewAnalyzer(newService(t, mock), nil)

	words := strings.Fields("Plain words without matches here.")
	out := a.AnalyzeDensityRange(context.Background(), strings.Join(words, " "), words)

	if len(out) != len(words) {
		t.Fatalf("expected %d densities, got %d", len(words), len(out))
	}
	// Neutral score 5 -> factor 1.0, so non-final words sit at 1.0.
	if out[0] != 1.0 {
		t.Errorf("expected neutral 1.0, got %v", out[0])
	}
}

func TestLookupScore_PrefixFallback(t *testing.T) {
	scores := map[string]float64{
		"the quick brown fox jumps over": 8,
	}
	// First-5-words key misses; the first-3-words prefix matches.
	got := lookupScore(scores, "The quick brown vixen leaps.")
	if got != 8 {
		t.Errorf("expected prefix fallback to 8, got %v", got)
	}

	if got := lookupScore(scores, "Nothing matches here at all."); got != neutralScore {
		t.Errorf("expected neutral score, got %v", got)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"One. Two! Three?", 3},
		{`"Quoted." Next.`, 2},
		{"No terminator at all", 1},
		{"Ends mid sentence. trailing frag", 2},
	}
	for _, tt := range tests {
		got := SplitSentences(tt.in)
		if len(got) != tt.want {
			t.Errorf("SplitSentences(%q) = %d sentences (%v), want %d", tt.in, len(got), got, tt.want)
		}
	}
}
