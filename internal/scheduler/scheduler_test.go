package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordingExec records dispatch order and signals after each execution.
type recordingExec struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
	done  chan string
}

func newRecordingExec() *recordingExec {
	return &recordingExec{
		fail: make(map[string]bool),
		done: make(chan string, 64),
	}
}

func (e *recordingExec) Execute(ctx context.Context, task *Task) error {
	e.mu.Lock()
	e.order = append(e.order, task.ID)
	e.mu.Unlock()
	e.done <- task.ID

	if e.fail[task.ID] {
		return errors.New("boom")
	}
	return nil
}

func (e *recordingExec) waitFor(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-e.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for execution %d of %d", i+1, n)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func task(id, book, chapter string, sub, start int, typ TaskType) *Task {
	return &Task{
		ID:              id,
		BookID:          book,
		ChapterID:       chapter,
		SubchapterIndex: sub,
		StartWordIndex:  start,
		EndWordIndex:    start + 2500,
		Type:            typ,
	}
}

func TestScheduler_CursorDrivenOrder(t *testing.T) {
	exec := newRecordingExec()
	s := New(Config{Executor: exec})

	// Cursor sits in chapter A at word 5000. C is the chunk being read,
	// B is in another chapter, and "passed" is behind the cursor.
	s.SetCursor("book", "A", 5000)
	s.AddTask(task("passed", "book", "A", 0, 0, TaskDensity))
	s.AddTask(task("far-future", "book", "A", 4, 50000, TaskDensity))
	s.AddTask(task("other-chapter", "book", "B", 0, 0, TaskDensity))
	s.AddTask(task("near", "book", "A", 2, 5200, TaskDensity))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	order := exec.waitFor(t, 4)
	// A passed chunk in the active chapter still outranks other chapters.
	want := []string{"near", "far-future", "passed", "other-chapter"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("dispatch order %v, want %v", order, want)
		}
	}
}

func TestScheduler_DensityBeforeSummary(t *testing.T) {
	exec := newRecordingExec()
	s := New(Config{Executor: exec})

	s.SetCursor("book", "A", 0)
	// Same chunk, enqueued summary-first.
	s.AddTask(task("summary", "book", "A", 0, 0, TaskSummary))
	s.AddTask(task("density", "book", "A", 0, 0, TaskDensity))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	order := exec.waitFor(t, 2)
	if order[0] != "density" || order[1] != "summary" {
		t.Errorf("dispatch order %v, want density before summary", order)
	}
}

func TestScheduler_DeduplicatesEnqueue(t *testing.T) {
	exec := newRecordingExec()
	s := New(Config{Executor: exec})

	s.AddTask(task("a", "book", "A", 0, 0, TaskDensity))
	s.AddTask(task("a-dup", "book", "A", 0, 0, TaskDensity))
	s.AddTask(task("b", "book", "A", 1, 2500, TaskDensity))

	if got := s.Pending(); got != 2 {
		t.Errorf("expected 2 pending after dedupe, got %d", got)
	}
}

func TestScheduler_FailedTaskDroppedAndNextDispatches(t *testing.T) {
	exec := newRecordingExec()
	exec.fail["first"] = true
	s := New(Config{Executor: exec})

	s.SetCursor("book", "A", 0)
	s.AddTask(task("first", "book", "A", 0, 0, TaskDensity))
	s.AddTask(task("second", "book", "A", 1, 2500, TaskDensity))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	order := exec.waitFor(t, 2)
	if len(order) != 2 || order[1] != "second" {
		t.Errorf("expected second task to dispatch after failure, got %v", order)
	}

	// The failed task was dropped, not parked: its key is released, so the
	// same chunk can be enqueued and dispatched again.
	deadline := time.Now().Add(2 * time.Second)
	for !s.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not go idle")
		}
		time.Sleep(time.Millisecond)
	}
	s.AddTask(task("first-retry", "book", "A", 0, 0, TaskDensity))
	order = exec.waitFor(t, 1)
	if order[len(order)-1] != "first-retry" {
		t.Errorf("expected re-enqueued task to dispatch, got %v", order)
	}
}

func TestScheduler_StopBook(t *testing.T) {
	exec := newRecordingExec()
	s := New(Config{Executor: exec})

	s.AddTask(task("a", "book1", "A", 0, 0, TaskDensity))
	s.AddTask(task("b", "book1", "A", 1, 2500, TaskDensity))
	s.AddTask(task("c", "book2", "X", 0, 0, TaskDensity))

	s.StopBook("book1")
	if got := s.Pending(); got != 1 {
		t.Fatalf("expected only book2's task pending, got %d", got)
	}

	// New tasks for the stopped book are ignored until resume.
	s.AddTask(task("d", "book1", "A", 2, 5000, TaskDensity))
	if got := s.Pending(); got != 1 {
		t.Errorf("stopped book accepted a task, pending=%d", got)
	}

	s.ResumeBook("book1")
	s.AddTask(task("d", "book1", "A", 2, 5000, TaskDensity))
	if got := s.Pending(); got != 2 {
		t.Errorf("resumed book rejected a task, pending=%d", got)
	}
}

func TestScheduler_RebalanceOnCursorMove(t *testing.T) {
	exec := newRecordingExec()
	s := New(Config{Executor: exec})

	// Two future chunks in the active chapter; cursor then jumps past the
	// first so the second becomes the chunk being read.
	s.SetCursor("book", "A", 0)
	for i := 0; i < 8; i++ {
		s.AddTask(task(fmt.Sprintf("chunk-%d", i), "book", "A", i, i*2500, TaskDensity))
	}
	s.SetCursor("book", "A", 5*2500)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	order := exec.waitFor(t, 8)
	if order[0] != "chunk-5" {
		t.Errorf("expected chunk-5 first after cursor jump, got %v", order)
	}
	// chunk-6 is within the current-chunk window (distance 2500 is future
	// base scored); chunks behind the cursor come last.
	last := order[len(order)-1]
	if last != "chunk-0" && last != "chunk-1" && last != "chunk-2" && last != "chunk-3" && last != "chunk-4" {
		t.Errorf("expected a passed chunk last, got %v", order)
	}
}
