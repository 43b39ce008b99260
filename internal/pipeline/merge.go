package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cadence-reader/cadence/internal/store"
	"github.com/cadence-reader/cadence/internal/types"
)

// Merge applies enrichment results to chapter documents. Every write goes
// through store.UpdateWithRetry so a revision conflict from a racing sibling
// task is resolved by re-fetching and reapplying the same logical patch.
type Merge struct {
	chapters store.Collection[types.Chapter]
}

// NewMerge creates a merge layer over the chapter collection.
func NewMerge(chapters store.Collection[types.Chapter]) *Merge {
	return &Merge{chapters: chapters}
}

// neutralDensity is the placeholder for words no density result has reached.
const neutralDensity = 1.0

// AppendDensityRange splices densities into the chapter at start. Content and
// Densities grow from source (the chapter's full word stream) as needed so
// both arrays stay aligned 1:1; any gap between the current tail and start is
// filled with neutral density. Content never shrinks.
func (m *Merge) AppendDensityRange(ctx context.Context, chapterID string, source []string, start int, densities []float64) error {
	need := start + len(densities)
	if need > len(source) {
		return fmt.Errorf("density range [%d, %d) exceeds source words (%d)", start, need, len(source))
	}

	_, err := store.UpdateWithRetry(ctx, m.chapters, chapterID, func(ch *types.Chapter) error {
		growTo(ch, source, need)
		copy(ch.Densities[start:need], densities)
		// Ranges already classified as junk stay at zero even when the
		// density result lands after the classification.
		for _, sc := range ch.Subchapters {
			if !sc.Junk {
				continue
			}
			zeroRange(ch.Densities, max(start, sc.StartWordIndex), min(need, sc.EndWordIndex))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append density range to chapter %s: %w", chapterID, err)
	}
	return nil
}

// UpsertSubchapter writes subchapter metadata at index, creating the entry if
// absent. Indexes between the current tail and index are padded with empty
// placeholders so a summary arriving out of order still lands at its slot.
// A junk subchapter zeroes its density range, growing the arrays from source
// if the density result has not arrived yet.
func (m *Merge) UpsertSubchapter(ctx context.Context, chapterID string, index int, sub types.Subchapter, source []string) error {
	_, err := store.UpdateWithRetry(ctx, m.chapters, chapterID, func(ch *types.Chapter) error {
		for len(ch.Subchapters) <= index {
			ch.Subchapters = append(ch.Subchapters, types.Subchapter{})
		}
		ch.Subchapters[index] = sub

		if sub.Junk {
			end := min(sub.EndWordIndex, len(source))
			growTo(ch, source, end)
			zeroRange(ch.Densities, sub.StartWordIndex, end)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert subchapter %d of chapter %s: %w", index, chapterID, err)
	}
	return nil
}

// growTo extends Content from source up to end and keeps Densities aligned,
// filling new slots with neutral density.
func growTo(ch *types.Chapter, source []string, end int) {
	if len(ch.Content) < end {
		ch.Content = append(ch.Content, source[len(ch.Content):end]...)
	}
	for len(ch.Densities) < len(ch.Content) {
		ch.Densities = append(ch.Densities, neutralDensity)
	}
}

func zeroRange(densities []float64, lo, hi int) {
	for i := lo; i < hi && i < len(densities); i++ {
		densities[i] = 0
	}
}

// SetStatus advances a chapter's lifecycle state.
func (m *Merge) SetStatus(ctx context.Context, chapterID string, status types.ChapterStatus) error {
	_, err := store.UpdateWithRetry(ctx, m.chapters, chapterID, func(ch *types.Chapter) error {
		ch.Status = status
		if status == types.ChapterReady {
			ch.Progress = 100
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set chapter %s status %s: %w", chapterID, status, err)
	}
	return nil
}

// SetTitle overwrites the chapter title once real heading text is discovered.
func (m *Merge) SetTitle(ctx context.Context, chapterID, title string) error {
	if title == "" {
		return nil
	}
	_, err := store.UpdateWithRetry(ctx, m.chapters, chapterID, func(ch *types.Chapter) error {
		ch.Title = title
		return nil
	})
	if err != nil {
		return fmt.Errorf("set chapter %s title: %w", chapterID, err)
	}
	return nil
}

// NoteChunkDone advances progress and processing-speed metrics after one
// enrichment task finishes. completed and total count tasks, not chunks.
func (m *Merge) NoteChunkDone(ctx context.Context, chapterID string, words, tokens int, elapsed time.Duration, completed, total int) error {
	_, err := store.UpdateWithRetry(ctx, m.chapters, chapterID, func(ch *types.Chapter) error {
		if total > 0 {
			ch.Progress = float64(completed) / float64(total) * 100
		}
		if minutes := elapsed.Minutes(); minutes > 0 {
			if words > 0 {
				ch.WordsPerMinute = float64(words) / minutes
			}
			if tokens > 0 {
				ch.TokensPerMinute = float64(tokens) / minutes
			}
		}
		ch.LastChunkAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("note chunk done for chapter %s: %w", chapterID, err)
	}
	return nil
}
