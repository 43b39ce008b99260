// Package enrich converts chunk text into per-word reading densities and
// subchapter summaries by way of the inference backend. Both operations
// degrade gracefully: a backend failure yields neutral output, never an error.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cadence-reader/cadence/internal/inference"
)

const (
	// neutralScore is assumed for any sentence the model did not score.
	neutralScore = 5.0

	// Density clamp bounds for non-zero densities. An exact-zero density
	// factor (junk score) bypasses the clamp: zero is a hard skip signal.
	minDensity = 0.5
	maxDensity = 5.0

	densityMaxTokens = 2048
)

// sentenceRe captures runs ending in terminal punctuation plus optional
// trailing quotes.
var sentenceRe = regexp.MustCompile(`[^.!?]*[.!?]+["'”’]*`)

// Analyzer scores chunk text into one density float per word.
type Analyzer struct {
	svc    *inference.Service
	logger *slog.Logger
}

// NewAnalyzer creates a density analyzer on the given inference service.
func NewAnalyzer(svc *inference.Service, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{svc: svc, logger: logger.With("component", "density")}
}

// AnalyzeDensityRange converts a chunk's raw text into one density per word.
// It never fails outward: on backend error the result is all 1.0; on a
// malformed reply, unscored sentences default to the neutral score and the
// structural multipliers still apply. The returned slice always has exactly
// len(words) entries.
func (a *Analyzer) AnalyzeDensityRange(ctx context.Context, chunkText string, words []string) []float64 {
	neutral := func() []float64 {
		out := make([]float64, len(words))
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	if len(words) == 0 {
		return nil
	}

	sentences := SplitSentences(chunkText)

	result, err := a.svc.Complete(ctx, inference.TierDensity, inference.CompletionRequest{
		Prompt:    buildDensityPrompt(sentences),
		MaxTokens: densityMaxTokens,
	})
	if err != nil {
		a.logger.Warn("density scoring failed, using neutral densities", "error", err)
		return neutral()
	}

	scores := parseScores(result.Text)

	out := make([]float64, 0, len(words))
	for _, sentence := range sentences {
		score := lookupScore(scores, sentence)
		factor := densityFactor(score)
		for _, w := range strings.Fields(sentence) {
			out = append(out, wordDensity(w, factor))
		}
	}

	// Sentence-splitting drift can leave the array short or long; the
	// contract is exact alignment with the input words.
	for len(out) < len(words) {
		out = append(out, 1.0)
	}
	return out[:len(words)]
}

// SplitSentences splits chunk text on terminal punctuation, keeping the
// terminator and trailing quotes with the sentence. Text with no terminator
// at all is treated as a single sentence, and a trailing unterminated
// fragment becomes the final sentence.
func SplitSentences(s string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(s, -1) {
		if frag := strings.TrimSpace(s[loc[0]:loc[1]]); frag != "" {
			sentences = append(sentences, frag)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(s[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func buildDensityPrompt(sentences []string) string {
	var b strings.Builder
	b.WriteString(densityPromptHeader)
	for _, s := range sentences {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}

// parseScores runs the lenient parser over the reply and normalizes keys the
// same way lookups will.
func parseScores(reply string) map[string]float64 {
	obj, err := inference.ParseLenientObject(reply)
	if err != nil {
		return nil
	}
	scores := make(map[string]float64, len(obj))
	for k := range obj {
		if v, ok := inference.NumberField(obj, k); ok {
			scores[inference.CleanKey(k)] = v
		}
	}
	return scores
}

// lookupScore finds a sentence's score by its cleaned first-5-words key,
// falling back to any stored key that starts with the cleaned first three
// words, then to the neutral score.
func lookupScore(scores map[string]float64, sentence string) float64 {
	words := strings.Fields(sentence)

	if key := sentenceKey(words, 5); key != "" {
		if v, ok := scores[key]; ok {
			return v
		}
	}
	if prefix := sentenceKey(words, 3); prefix != "" {
		for k, v := range scores {
			if strings.HasPrefix(k, prefix) {
				return v
			}
		}
	}
	return neutralScore
}

func sentenceKey(words []string, n int) string {
	if len(words) > n {
		words = words[:n]
	}
	return inference.CleanKey(strings.Join(words, " "))
}

// densityFactor maps a 0-10 complexity score onto a speed multiplier. Score 0
// is the junk signal and maps to an exact zero.
func densityFactor(score float64) float64 {
	if score == 0 {
		return 0
	}
	return 1 + (score-neutralScore)*0.1
}

// wordDensity applies the structural multiplier and clamps, unless the factor
// is the zero skip signal.
func wordDensity(word string, factor float64) float64 {
	if factor == 0 {
		return 0
	}
	d := structuralMultiplier(word) * factor
	if d < minDensity {
		return minDensity
	}
	if d > maxDensity {
		return maxDensity
	}
	return d
}

// structuralMultiplier slows playback at phrase and sentence boundaries and
// on long words, independent of the model score.
func structuralMultiplier(word string) float64 {
	trimmed := strings.TrimRight(word, `"'”’)`)
	switch {
	case strings.HasSuffix(trimmed, "."), strings.HasSuffix(trimmed, "!"), strings.HasSuffix(trimmed, "?"):
		return 3.0
	case strings.HasSuffix(trimmed, ","), strings.HasSuffix(trimmed, ";"):
		return 1.5
	case len(word) > 8:
		return 1.2
	default:
		return 1.0
	}
}
