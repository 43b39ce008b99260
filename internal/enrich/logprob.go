package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/cadence-reader/cadence/internal/inference"
)

// baselineSurprisal is the negative logprob of an unremarkable token; words
// above it read as dense, below it as easy.
const baselineSurprisal = 3.0

// EstimateDensitiesByLogprob is the token-probability density estimator: it
// scores the chunk with a forward pass and maps per-token surprisal onto the
// word array. Unlike AnalyzeDensityRange it can fail (no scores, backend
// down); callers fall back to the prompt-based analyzer.
func EstimateDensitiesByLogprob(ctx context.Context, svc *inference.Service, words []string) ([]float64, error) {
	tokens, err := svc.ScoreTokens(ctx, inference.TierDensity, strings.Join(words, " "))
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("backend returned no token scores")
	}

	out := make([]float64, len(words))

	// Walk tokens, accumulating their text against the word stream. Tokens
	// rarely align with whitespace words, so each word takes the mean
	// surprisal of the tokens that overlap it.
	wordIdx := 0
	var acc string
	var sum float64
	var n int
	for _, tok := range tokens {
		if wordIdx >= len(words) {
			break
		}
		acc += strings.TrimSpace(tok.Token)
		sum += -tok.Logprob
		n++

		if len(acc) >= len(words[wordIdx]) {
			mean := sum / float64(n)
			out[wordIdx] = clampDensity(1 + (mean-baselineSurprisal)*0.1)
			wordIdx++
			acc, sum, n = "", 0, 0
		}
	}
	for ; wordIdx < len(words); wordIdx++ {
		out[wordIdx] = 1.0
	}
	return out, nil
}

func clampDensity(d float64) float64 {
	if d < minDensity {
		return minDensity
	}
	if d > maxDensity {
		return maxDensity
	}
	return d
}
