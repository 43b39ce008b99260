package text

import "strings"

// DefaultChunkWords is the default chunk word budget.
const DefaultChunkWords = 2500

// Chunk is a sentence-boundary-aligned slice of a chapter's word stream.
// Start/End are a half-open range into the source word array; chunks are
// contiguous and non-overlapping across the returned list.
type Chunk struct {
	Start int
	End   int
	Text  string
}

// trailing quote characters that may follow terminal punctuation.
const trailingQuotes = `"'”’)`

// EndsSentence reports whether a word ends with terminal punctuation,
// optionally followed by quote characters.
func EndsSentence(word string) bool {
	w := strings.TrimRight(word, trailingQuotes)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
}

// Split greedily accumulates words until the budget is met and the current
// word ends a sentence, then cuts. The final partial run (no terminator
// reached) is still emitted as the last chunk.
func Split(words []string, budget int) []Chunk {
	if budget <= 0 {
		budget = DefaultChunkWords
	}
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for i, w := range words {
		if i-start+1 >= budget && EndsSentence(w) {
			chunks = append(chunks, Chunk{
				Start: start,
				End:   i + 1,
				Text:  strings.Join(words[start:i+1], " "),
			})
			start = i + 1
		}
	}
	if start < len(words) {
		chunks = append(chunks, Chunk{
			Start: start,
			End:   len(words),
			Text:  strings.Join(words[start:], " "),
		})
	}
	return chunks
}
