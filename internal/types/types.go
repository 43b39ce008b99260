// Package types provides shared domain types used across multiple packages.
// This package has no dependencies on other cadence packages to avoid import cycles.
package types

import "time"

// ChapterStatus tracks a chapter's progress through the enrichment pipeline.
type ChapterStatus string

const (
	// ChapterPending means the chapter was created at ingest but not yet claimed.
	ChapterPending ChapterStatus = "pending"
	// ChapterProcessing means the pipeline has claimed the chapter and
	// enrichment chunks are in flight.
	ChapterProcessing ChapterStatus = "processing"
	// ChapterReady means all chunks completed and the chapter is fully enriched.
	ChapterReady ChapterStatus = "ready"
	// ChapterError means enrichment hit an unrecoverable failure. A chapter in
	// this state may be re-entered into processing by running the pipeline on
	// the same chapter id again.
	ChapterError ChapterStatus = "error"
)

// Book is the top-level record created once at ingest time.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	CoverRef   string    `json:"coverRef,omitempty"`
	TotalWords int       `json:"totalWords"`
	ChapterIDs []string  `json:"chapterIds"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Subchapter is a chunk's persisted enrichment metadata. StartWordIndex and
// EndWordIndex are a half-open range into the owning chapter's Content array.
// Across the Subchapters slice the ranges are non-decreasing and non-overlapping.
// Junk records a junk classification (front matter, indexes, boilerplate);
// junk ranges carry zero density so playback skips them.
type Subchapter struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	StartWordIndex int    `json:"startWordIndex"`
	EndWordIndex   int    `json:"endWordIndex"`
	Junk           bool   `json:"junk,omitempty"`
}

// Chapter accumulates enrichment results incrementally. Content is append-only;
// Densities is kept aligned 1:1 with Content at every externally observed
// snapshot (entries default to 1.0 until a density result overwrites them).
type Chapter struct {
	ID         string        `json:"id"`
	BookID     string        `json:"bookId"`
	SpineIndex int           `json:"spineIndex"`
	Title      string        `json:"title"`
	Status     ChapterStatus `json:"status"`
	Progress   float64       `json:"progress"` // 0-100

	// Processing speed metrics, updated as chunks complete.
	WordsPerMinute  float64   `json:"wordsPerMinute,omitempty"`
	TokensPerMinute float64   `json:"tokensPerMinute,omitempty"`
	LastChunkAt     time.Time `json:"lastChunkAt,omitempty"`

	Content     []string     `json:"content"`
	Densities   []float64    `json:"densities"`
	Subchapters []Subchapter `json:"subchapters"`
}

// Highlight marks a word range the reader flagged while reading.
type Highlight struct {
	ChapterID      string `json:"chapterId"`
	StartWordIndex int    `json:"startWordIndex"`
	EndWordIndex   int    `json:"endWordIndex"`
}

// ReadingState is the reader's cursor, owned by the UI/persistence boundary.
// The pipeline only reads it through Scheduler.SetCursor.
type ReadingState struct {
	BookID           string      `json:"bookId"`
	CurrentChapterID string      `json:"currentChapterId"`
	CurrentWordIndex int         `json:"currentWordIndex"`
	LastRead         time.Time   `json:"lastRead"`
	Highlights       []Highlight `json:"highlights,omitempty"`
}
