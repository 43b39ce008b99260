package inference

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoObject is returned when model output contains no recognizable JSON object.
var ErrNoObject = errors.New("no JSON object in model output")

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)

	smartQuoteReplacer = strings.NewReplacer(
		"“", `"`, // left double
		"”", `"`, // right double
		"„", `"`, // low double
		"‘", "'", // left single
		"’", "'", // right single
	)
)

// ParseLenientObject extracts and parses a JSON object from generative model
// output. The backend is treated as adversarial input: replies arrive wrapped
// in prose, with smart quotes, trailing commas, or truncated before the
// closing brace. The cascade:
//
//  1. Take the outermost {...}. If the closing brace is missing (truncated
//     generation), take everything from the first { and synthesize one.
//  2. Normalize smart quotes, strip trailing commas, strict json.Unmarshal.
//  3. On failure, scrape line by line: split each line on its LAST colon,
//     clean the key (CleanKey), parse the value as JSON, number, or string.
func ParseLenientObject(raw string) (map[string]any, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, ErrNoObject
	}

	end := strings.LastIndex(raw, "}")
	var candidate string
	if end > start {
		candidate = raw[start : end+1]
	} else {
		candidate = raw[start:] + "}"
	}

	candidate = smartQuoteReplacer.Replace(candidate)
	candidate = trailingCommaRe.ReplaceAllString(candidate, "$1")

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, nil
	}

	obj = scrapeLines(candidate)
	if len(obj) == 0 {
		return nil, ErrNoObject
	}
	return obj, nil
}

// scrapeLines is the tolerant fallback for output that is almost, but not
// quite, JSON: one "key": value pair per line with malformed quoting. The
// split is on the last colon so keys containing colons survive.
func scrapeLines(s string) map[string]any {
	out := make(map[string]any)

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "{}")
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}

		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}

		key := CleanKey(line[:idx])
		if key == "" {
			continue
		}

		out[key] = parseScalar(strings.TrimSpace(line[idx+1:]))
	}

	return out
}

func parseScalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	unquoted := strings.Trim(s, `"'`)
	if f, err := strconv.ParseFloat(unquoted, 64); err == nil {
		return f
	}
	return unquoted
}

// CleanKey normalizes a lookup key: every character that is not a letter,
// digit, or space is removed, whitespace runs collapse to single spaces, and
// the result is lowercased so score lookups tolerate the model's casing.
func CleanKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	cleaned := whitespaceRunRe.ReplaceAllString(b.String(), " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

// NumberField reads a numeric field from a lenient object, accepting any of
// the representations the fallback parser can produce.
func NumberField(obj map[string]any, key string) (float64, bool) {
	v, ok := obj[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// StringField reads a string field from a lenient object.
func StringField(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
