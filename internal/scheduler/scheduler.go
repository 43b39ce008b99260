// Package scheduler owns the dynamic priority queue of enrichment tasks. The
// queue is ephemeral: priorities are fully derived from the reader's cursor
// and task metadata, so losing it on restart is safe; tasks are re-derived
// from chapter status by the ingestion driver.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// TaskType distinguishes the two enrichment calls a chunk needs.
type TaskType string

const (
	// TaskDensity scores per-word reading density.
	TaskDensity TaskType = "DENSITY"
	// TaskSummary produces subchapter title/summary metadata.
	TaskSummary TaskType = "SUMMARY"
)

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of enrichment work over a chunk's word range.
type Task struct {
	ID              string
	BookID          string
	ChapterID       string
	SubchapterIndex int
	StartWordIndex  int // half-open range into the chapter word stream
	EndWordIndex    int
	Type            TaskType
	Status          TaskStatus
	Priority        int
	Text            string // raw chunk text payload
}

// Key identifies a task for de-duplication.
func (t *Task) Key() string {
	return fmt.Sprintf("%s:%s:%d:%s", t.BookID, t.ChapterID, t.SubchapterIndex, t.Type)
}

// Executor runs one task to completion. The scheduler dispatches exactly one
// task at a time; executors reach the inference backend through the gated
// inference service, so backend concurrency stays at one even if an executor
// fans out internally.
type Executor interface {
	Execute(ctx context.Context, task *Task) error
}

// Priority scoring constants. Values follow the locality ladder: active book,
// active chapter, chunk under the cursor, near future, passed text.
const (
	scoreActiveBook     = 10000
	scoreActiveChapter  = 5000
	scoreCurrentChunk   = 2000
	scoreFutureBase     = 1000
	scoreSameBook       = 500
	scorePassedChunk    = 100
	scoreDensityBonus   = 50
	currentChunkWindow  = 2500
	futureDistanceScale = 100
)

// Scheduler reorders pending enrichment work around the reader's live cursor.
type Scheduler struct {
	mu      sync.Mutex
	pending []*Task
	keys    map[string]struct{}
	stopped map[string]bool // books no longer eligible for dispatch

	cursorBook    string
	cursorChapter string
	cursorWord    int

	inFlight *Task

	exec   Executor
	logger *slog.Logger
	notify chan struct{}
}

// Config configures a new Scheduler.
type Config struct {
	Executor Executor
	Logger   *slog.Logger
}

// New creates a scheduler. Call Run to start dispatching.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		keys:    make(map[string]struct{}),
		stopped: make(map[string]bool),
		exec:    cfg.Executor,
		logger:  logger.With("component", "scheduler"),
		notify:  make(chan struct{}, 1),
	}
}

// AddTask enqueues a task. Enqueue is idempotent: a task with the same
// (book, chapter, subchapter index, type) as an existing entry is dropped
// silently. Tasks for stopped books are also dropped.
func (s *Scheduler) AddTask(task *Task) {
	s.mu.Lock()
	if s.stopped[task.BookID] {
		s.mu.Unlock()
		return
	}
	key := task.Key()
	if _, dup := s.keys[key]; dup {
		s.mu.Unlock()
		return
	}
	if task.ID == "" {
		task.ID = key
	}
	task.Status = TaskPending
	s.keys[key] = struct{}{}
	s.pending = append(s.pending, task)
	s.rebalanceLocked()
	s.mu.Unlock()

	s.wake()
}

// SetCursor reports the reader's live position and re-scores all pending work
// so the chunk the reader is about to hit is enriched first.
func (s *Scheduler) SetCursor(bookID, chapterID string, wordIndex int) {
	s.mu.Lock()
	s.cursorBook = bookID
	s.cursorChapter = chapterID
	s.cursorWord = wordIndex
	s.rebalanceLocked()
	s.mu.Unlock()
}

// StopBook halts future dispatch for a book: pending tasks are discarded and
// later AddTask calls for the book are ignored until ResumeBook. An in-flight
// task finishes naturally.
func (s *Scheduler) StopBook(bookID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped[bookID] = true
	kept := s.pending[:0]
	for _, t := range s.pending {
		if t.BookID == bookID {
			delete(s.keys, t.Key())
			continue
		}
		kept = append(kept, t)
	}
	s.pending = kept
}

// ResumeBook makes a stopped book eligible again.
func (s *Scheduler) ResumeBook(bookID string) {
	s.mu.Lock()
	delete(s.stopped, bookID)
	s.mu.Unlock()
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Idle reports whether nothing is queued or executing.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && s.inFlight == nil
}

// rebalanceLocked recomputes every pending task's priority against the
// current cursor and sorts descending. O(n log n) per mutation is fine at the
// scale of a single book's chunk count.
func (s *Scheduler) rebalanceLocked() {
	for _, t := range s.pending {
		t.Priority = s.scoreLocked(t)
	}
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].Priority > s.pending[j].Priority
	})
}

func (s *Scheduler) scoreLocked(t *Task) int {
	score := 0
	if t.BookID == s.cursorBook {
		score += scoreActiveBook

		if t.ChapterID == s.cursorChapter {
			score += scoreActiveChapter
			distance := t.StartWordIndex - s.cursorWord
			switch {
			case distance < 0:
				score += scorePassedChunk
			case distance < currentChunkWindow:
				score += scoreCurrentChunk
			default:
				// Closer future chunks score higher; very distant ones may go
				// negative, which still ranks below current work.
				score += scoreFutureBase - distance/futureDistanceScale
			}
		} else {
			score += scoreSameBook
		}
	}
	if t.Type == TaskDensity {
		score += scoreDensityBonus
	}
	return score
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run dispatches tasks until ctx is cancelled. At most one task executes at a
// time; after each completion or failure the next highest-priority pending
// task dispatches immediately. Call in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started")

	for {
		task := s.take(ctx)
		if task == nil {
			s.logger.Info("scheduler stopping")
			return
		}

		err := s.exec.Execute(ctx, task)

		s.mu.Lock()
		s.inFlight = nil
		delete(s.keys, task.Key())
		s.mu.Unlock()

		if err != nil {
			// Failed tasks are dropped, not retried; the chapter-level error
			// state is the executor's to manage.
			task.Status = TaskFailed
			s.logger.Warn("task failed", "task", task.ID, "error", err)
		} else {
			task.Status = TaskCompleted
			s.logger.Debug("task completed", "task", task.ID)
		}
	}
}

// take blocks until a task is available or ctx is cancelled.
func (s *Scheduler) take(ctx context.Context) *Task {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			task := s.pending[0]
			s.pending = s.pending[1:]
			task.Status = TaskProcessing
			s.inFlight = task
			s.mu.Unlock()
			return task
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-s.notify:
		}
	}
}
