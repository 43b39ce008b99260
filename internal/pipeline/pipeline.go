// Package pipeline drives a book from raw EPUB bytes to fully enriched
// chapters: ingest creates the documents, background processing extracts and
// chunks each chapter's word stream, and the scheduler dispatches density and
// summary tasks one at a time through the inference gate. Results land in the
// chapter documents through the merge layer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cadence-reader/cadence/internal/enrich"
	"github.com/cadence-reader/cadence/internal/epub"
	"github.com/cadence-reader/cadence/internal/inference"
	"github.com/cadence-reader/cadence/internal/scheduler"
	"github.com/cadence-reader/cadence/internal/store"
	"github.com/cadence-reader/cadence/internal/text"
	"github.com/cadence-reader/cadence/internal/types"
)

// ErrUnknownBook is returned when processing is requested for a book id that
// was never ingested.
var ErrUnknownBook = errors.New("unknown book")

// Config configures a Pipeline.
type Config struct {
	Docs      *store.Documents
	Inference *inference.Service

	ChunkWords          int  // words per enrichment chunk, default text.DefaultChunkWords
	SummaryExcerptChars int  // excerpt sent to the summary model
	RemoveJunk          bool // honor JUNK classifications from the summarizer
	UseLogprobDensity   bool // estimate densities from token logprobs instead of scores

	Logger *slog.Logger
}

// chapterWork is the in-memory state for a chapter currently being enriched.
// It is ephemeral: the word stream is recomputed from the stored EPUB blob on
// every ProcessChaptersInBackground call, so restarts lose nothing durable.
type chapterWork struct {
	bookID    string
	words     []string
	total     int // tasks enqueued for the chapter
	completed int
}

// Pipeline implements the ingestion driver and the scheduler's Executor.
type Pipeline struct {
	docs       *store.Documents
	svc        *inference.Service
	sched      *scheduler.Scheduler
	analyzer   *enrich.Analyzer
	summarizer *enrich.Summarizer
	merge      *Merge
	logger     *slog.Logger

	chunkWords int
	useLogprob bool

	mu   sync.Mutex
	work map[string]*chapterWork // keyed by chapter id
}

// New creates a pipeline. Call Run to start the dispatch loop.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunkWords := cfg.ChunkWords
	if chunkWords <= 0 {
		chunkWords = text.DefaultChunkWords
	}

	p := &Pipeline{
		docs:     cfg.Docs,
		svc:      cfg.Inference,
		analyzer: enrich.NewAnalyzer(cfg.Inference, logger),
		summarizer: enrich.NewSummarizer(enrich.SummarizerConfig{
			Service:      cfg.Inference,
			ExcerptChars: cfg.SummaryExcerptChars,
			RemoveJunk:   cfg.RemoveJunk,
			Logger:       logger,
		}),
		merge:      NewMerge(cfg.Docs.Chapters),
		logger:     logger.With("component", "pipeline"),
		chunkWords: chunkWords,
		useLogprob: cfg.UseLogprobDensity,
		work:       make(map[string]*chapterWork),
	}
	p.sched = scheduler.New(scheduler.Config{Executor: p, Logger: logger})
	return p
}

// Scheduler exposes the task queue for cursor updates and stop/resume.
func (p *Pipeline) Scheduler() *scheduler.Scheduler { return p.sched }

// Run dispatches enrichment tasks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) { p.sched.Run(ctx) }

// IngestResult is what InitialIngest hands back to the caller.
type IngestResult struct {
	Book       *store.Doc[types.Book]
	Chapters   []*store.Doc[types.Chapter]
	FileBlobID string
	CoverID    string // empty when the EPUB declares no cover
}

// InitialIngest parses EPUB bytes and creates the book, its pending chapter
// documents, and blobs for the raw file and cover image. No enrichment happens
// here; call ProcessChaptersInBackground to start it.
func (p *Pipeline) InitialIngest(ctx context.Context, data []byte) (*IngestResult, error) {
	eb, err := epub.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}

	bookID := uuid.NewString()
	fileID := "epub/" + bookID
	if _, err := p.docs.Blobs.Insert(ctx, fileID, store.Blob{Name: "book.epub", Data: data}); err != nil {
		return nil, fmt.Errorf("store epub blob: %w", err)
	}

	coverID := ""
	if cover := eb.Cover(); len(cover) > 0 {
		coverID = "cover/" + bookID
		if _, err := p.docs.Blobs.Insert(ctx, coverID, store.Blob{Name: "cover", Data: cover}); err != nil {
			return nil, fmt.Errorf("store cover blob: %w", err)
		}
	}

	result := &IngestResult{FileBlobID: fileID, CoverID: coverID}
	chapterIDs := make([]string, 0, len(eb.Spine))
	for _, entry := range eb.Spine {
		chapterID := uuid.NewString()
		doc, err := p.docs.Chapters.Insert(ctx, chapterID, types.Chapter{
			ID:         chapterID,
			BookID:     bookID,
			SpineIndex: entry.Index,
			Status:     types.ChapterPending,
		})
		if err != nil {
			return nil, fmt.Errorf("create chapter %d: %w", entry.Index, err)
		}
		chapterIDs = append(chapterIDs, chapterID)
		result.Chapters = append(result.Chapters, doc)
	}

	book, err := p.docs.Books.Insert(ctx, bookID, types.Book{
		ID:         bookID,
		Title:      eb.Title,
		Author:     eb.Author,
		CoverRef:   coverID,
		ChapterIDs: chapterIDs,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	result.Book = book

	p.logger.Info("book ingested",
		"book", bookID, "title", eb.Title, "chapters", len(chapterIDs))
	return result, nil
}

// ProcessChaptersInBackground claims every non-ready chapter of a book,
// extracts and chunks its word stream, and enqueues density and summary tasks.
// Returns once all tasks are enqueued; enrichment itself runs on the dispatch
// loop. Safe to call again for the same book: ready chapters are skipped and
// error chapters re-enter processing.
func (p *Pipeline) ProcessChaptersInBackground(ctx context.Context, bookID string) error {
	book, err := p.docs.Books.Get(ctx, bookID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownBook, bookID)
	}
	if err != nil {
		return err
	}

	blob, err := p.docs.Blobs.Get(ctx, "epub/"+bookID)
	if err != nil {
		return fmt.Errorf("load epub blob for book %s: %w", bookID, err)
	}
	eb, err := epub.Open(blob.Data.Data)
	if err != nil {
		return fmt.Errorf("reopen epub for book %s: %w", bookID, err)
	}

	p.sched.ResumeBook(bookID)

	totalWords := 0
	for _, chapterID := range book.Data.ChapterIDs {
		words, err := p.prepareChapter(ctx, eb, bookID, chapterID)
		if err != nil {
			p.logger.Warn("chapter failed to prepare", "chapter", chapterID, "error", err)
			if serr := p.merge.SetStatus(ctx, chapterID, types.ChapterError); serr != nil {
				p.logger.Error("failed to mark chapter error", "chapter", chapterID, "error", serr)
			}
			continue
		}
		totalWords += len(words)
	}

	_, err = store.UpdateWithRetry(ctx, p.docs.Books, bookID, func(b *types.Book) error {
		b.TotalWords = totalWords
		return nil
	})
	return err
}

// prepareChapter claims one chapter and enqueues its enrichment tasks.
// Returns the chapter's word stream, or nil when the chapter is already done.
func (p *Pipeline) prepareChapter(ctx context.Context, eb *epub.Book, bookID, chapterID string) ([]string, error) {
	ch, err := p.docs.Chapters.Get(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if ch.Data.Status == types.ChapterReady {
		return ch.Data.Content, nil
	}
	if ch.Data.SpineIndex >= len(eb.Spine) {
		return nil, fmt.Errorf("spine index %d out of range", ch.Data.SpineIndex)
	}

	markup, err := eb.Chapter(eb.Spine[ch.Data.SpineIndex])
	if err != nil {
		return nil, fmt.Errorf("read chapter source: %w", err)
	}
	extraction, err := text.Extract(markup)
	if err != nil {
		return nil, fmt.Errorf("extract chapter text: %w", err)
	}

	if err := p.merge.SetStatus(ctx, chapterID, types.ChapterProcessing); err != nil {
		return nil, err
	}
	if err := p.merge.SetTitle(ctx, chapterID, extraction.Title); err != nil {
		return nil, err
	}

	words := extraction.Words
	if len(words) == 0 {
		if err := p.merge.SetStatus(ctx, chapterID, types.ChapterReady); err != nil {
			return nil, err
		}
		return nil, nil
	}

	chunks := text.Split(words, p.chunkWords)

	p.mu.Lock()
	p.work[chapterID] = &chapterWork{
		bookID: bookID,
		words:  words,
		total:  len(chunks) * 2, // one density and one summary task per chunk
	}
	p.mu.Unlock()

	for i, chunk := range chunks {
		p.sched.AddTask(&scheduler.Task{
			ID:              uuid.NewString(),
			BookID:          bookID,
			ChapterID:       chapterID,
			SubchapterIndex: i,
			StartWordIndex:  chunk.Start,
			EndWordIndex:    chunk.End,
			Type:            scheduler.TaskDensity,
			Text:            chunk.Text,
		})
		p.sched.AddTask(&scheduler.Task{
			ID:              uuid.NewString(),
			BookID:          bookID,
			ChapterID:       chapterID,
			SubchapterIndex: i,
			StartWordIndex:  chunk.Start,
			EndWordIndex:    chunk.End,
			Type:            scheduler.TaskSummary,
			Text:            chunk.Text,
		})
	}

	p.logger.Info("chapter queued",
		"chapter", chapterID, "words", len(words), "chunks", len(chunks))
	return words, nil
}

// Execute runs one enrichment task. Called by the scheduler, one task at a
// time. A task whose chapter work entry is gone (stopped or already errored)
// is dropped silently.
func (p *Pipeline) Execute(ctx context.Context, task *scheduler.Task) error {
	p.mu.Lock()
	work, ok := p.work[task.ChapterID]
	p.mu.Unlock()
	if !ok {
		p.logger.Debug("dropping stale task", "task", task.ID, "chapter", task.ChapterID)
		return nil
	}

	started := time.Now()
	var err error
	switch task.Type {
	case scheduler.TaskDensity:
		err = p.runDensity(ctx, task, work)
	case scheduler.TaskSummary:
		err = p.runSummary(ctx, task, work)
	default:
		err = fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		p.failChapter(ctx, task.ChapterID, err)
		return err
	}

	return p.noteTaskDone(ctx, task, work, time.Since(started))
}

func (p *Pipeline) runDensity(ctx context.Context, task *scheduler.Task, work *chapterWork) error {
	words := work.words[task.StartWordIndex:task.EndWordIndex]

	var densities []float64
	if p.useLogprob {
		var err error
		densities, err = enrich.EstimateDensitiesByLogprob(ctx, p.svc, words)
		if err != nil {
			p.logger.Warn("logprob estimate failed, falling back to scored densities",
				"chapter", task.ChapterID, "error", err)
			densities = nil
		}
	}
	if densities == nil {
		densities = p.analyzer.AnalyzeDensityRange(ctx, task.Text, words)
	}

	return p.merge.AppendDensityRange(ctx, task.ChapterID, work.words, task.StartWordIndex, densities)
}

func (p *Pipeline) runSummary(ctx context.Context, task *scheduler.Task, work *chapterWork) error {
	res := p.summarizer.Summarize(ctx, task.Text, task.SubchapterIndex)
	return p.merge.UpsertSubchapter(ctx, task.ChapterID, task.SubchapterIndex, types.Subchapter{
		Title:          res.Title,
		Summary:        res.Summary,
		StartWordIndex: task.StartWordIndex,
		EndWordIndex:   task.EndWordIndex,
		Junk:           res.Junk,
	}, work.words)
}

// noteTaskDone advances progress and, when the chapter's last task finishes,
// marks it ready and releases the in-memory work entry.
func (p *Pipeline) noteTaskDone(ctx context.Context, task *scheduler.Task, work *chapterWork, elapsed time.Duration) error {
	p.mu.Lock()
	work.completed++
	completed, total := work.completed, work.total
	done := completed >= total
	if done {
		delete(p.work, task.ChapterID)
	}
	p.mu.Unlock()

	chunkWords := 0
	tokens := 0
	if task.Type == scheduler.TaskDensity {
		chunkWords = task.EndWordIndex - task.StartWordIndex
		// Rough chars-per-token estimate for the throughput metric.
		tokens = len(task.Text) / 4
	}
	if err := p.merge.NoteChunkDone(ctx, task.ChapterID, chunkWords, tokens, elapsed, completed, total); err != nil {
		return err
	}

	if done {
		if err := p.merge.SetStatus(ctx, task.ChapterID, types.ChapterReady); err != nil {
			return err
		}
		p.logger.Info("chapter ready", "chapter", task.ChapterID)
	}
	return nil
}

// failChapter marks a chapter errored and drops its remaining work. Other
// chapters of the book keep processing.
func (p *Pipeline) failChapter(ctx context.Context, chapterID string, cause error) {
	p.mu.Lock()
	delete(p.work, chapterID)
	p.mu.Unlock()

	p.logger.Error("chapter failed", "chapter", chapterID, "error", cause)
	if err := p.merge.SetStatus(ctx, chapterID, types.ChapterError); err != nil {
		p.logger.Error("failed to mark chapter error", "chapter", chapterID, "error", err)
	}
}

// SetCursor reports the reader's position: the scheduler re-prioritizes and
// the reading state document is upserted for the UI to resume from.
func (p *Pipeline) SetCursor(ctx context.Context, bookID, chapterID string, wordIndex int) error {
	p.sched.SetCursor(bookID, chapterID, wordIndex)

	if _, err := p.docs.Reading.Get(ctx, bookID); errors.Is(err, store.ErrNotFound) {
		_, err = p.docs.Reading.Insert(ctx, bookID, types.ReadingState{
			BookID:           bookID,
			CurrentChapterID: chapterID,
			CurrentWordIndex: wordIndex,
			LastRead:         time.Now().UTC(),
		})
		// A concurrent insert loses the race harmlessly; fall through to update.
		if err == nil || !errors.Is(err, store.ErrAlreadyExists) {
			return err
		}
	} else if err != nil {
		return err
	}

	_, err := store.UpdateWithRetry(ctx, p.docs.Reading, bookID, func(rs *types.ReadingState) error {
		rs.BookID = bookID
		rs.CurrentChapterID = chapterID
		rs.CurrentWordIndex = wordIndex
		rs.LastRead = time.Now().UTC()
		return nil
	})
	return err
}

// StopBook halts future dispatch for a book. In-flight work finishes
// naturally; chapter documents keep whatever enrichment already landed.
func (p *Pipeline) StopBook(bookID string) {
	p.sched.StopBook(bookID)

	p.mu.Lock()
	for chapterID, w := range p.work {
		if w.bookID == bookID {
			delete(p.work, chapterID)
		}
	}
	p.mu.Unlock()
}
