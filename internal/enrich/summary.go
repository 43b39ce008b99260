package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cadence-reader/cadence/internal/inference"
)

const (
	// DefaultExcerptChars bounds how much chunk text is sent to the model.
	DefaultExcerptChars = 3000

	summaryMaxTokens = 512

	// StatusContent and StatusJunk are the classification values the model
	// may return for a chunk.
	StatusContent = "CONTENT"
	StatusJunk    = "JUNK"
)

// summarySchema validates the shape of the model's structured reply.
const summarySchema = `{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["CONTENT", "JUNK"]},
		"title": {"type": "string"},
		"summary": {"type": "string"}
	},
	"required": ["status"]
}`

var compiledSummarySchema = jsonschema.MustCompileString("summary_reply.json", summarySchema)

// SummarizeResult is a chunk's enrichment metadata.
type SummarizeResult struct {
	Status  string
	Title   string
	Summary string
	// Junk is true when the model classified the chunk as junk AND junk
	// removal is enabled; otherwise chunks always count as content.
	Junk bool
}

// Summarizer requests a title/summary/junk classification for a chunk.
type Summarizer struct {
	svc          *inference.Service
	excerptChars int
	removeJunk   bool
	logger       *slog.Logger
}

// SummarizerConfig configures a Summarizer.
type SummarizerConfig struct {
	Service      *inference.Service
	ExcerptChars int  // default DefaultExcerptChars
	RemoveJunk   bool // honor JUNK classifications
	Logger       *slog.Logger
}

// NewSummarizer creates a summarizer on the given inference service.
func NewSummarizer(cfg SummarizerConfig) *Summarizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	excerpt := cfg.ExcerptChars
	if excerpt <= 0 {
		excerpt = DefaultExcerptChars
	}
	return &Summarizer{
		svc:          cfg.Service,
		excerptChars: excerpt,
		removeJunk:   cfg.RemoveJunk,
		logger:       logger.With("component", "summary"),
	}
}

// Summarize classifies and titles one chunk. index is the chunk's position in
// its chapter, used for the "Part N" fallback. Never fails outward: backend
// errors and unparseable replies both yield the default title and an empty
// summary.
func (s *Summarizer) Summarize(ctx context.Context, chunkText string, index int) SummarizeResult {
	fallback := SummarizeResult{
		Status: StatusContent,
		Title:  fmt.Sprintf("Part %d", index+1),
	}

	excerpt := chunkText
	if len(excerpt) > s.excerptChars {
		// Back up to a rune boundary so a multibyte character straddling the
		// cut is dropped whole rather than sent as invalid UTF-8.
		cut := s.excerptChars
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}

	result, err := s.svc.Complete(ctx, inference.TierSummary, inference.CompletionRequest{
		Prompt:    summaryPrompt + excerpt,
		MaxTokens: summaryMaxTokens,
	})
	if err != nil {
		s.logger.Warn("summary call failed, using fallback", "index", index, "error", err)
		return fallback
	}

	obj, err := inference.ParseLenientObject(result.Text)
	if err != nil {
		s.logger.Warn("summary reply unparseable, using fallback", "index", index)
		return fallback
	}
	if err := compiledSummarySchema.Validate(map[string]any(obj)); err != nil {
		s.logger.Warn("summary reply failed schema validation, using fallback", "index", index, "error", err)
		return fallback
	}

	out := fallback
	if status, ok := inference.StringField(obj, "status"); ok {
		status = strings.ToUpper(strings.TrimSpace(status))
		if status == StatusJunk {
			out.Status = StatusJunk
			out.Junk = s.removeJunk
		}
	}
	if title, ok := inference.StringField(obj, "title"); ok && strings.TrimSpace(title) != "" {
		out.Title = strings.TrimSpace(title)
	}
	if summary, ok := inference.StringField(obj, "summary"); ok {
		out.Summary = strings.TrimSpace(summary)
	}
	return out
}
