// Package store provides versioned document collections with optimistic
// concurrency. Every write is revision-checked: a Put against a stale revision
// fails with ErrConflict and must be retried by re-fetching the latest
// revision and reapplying the mutation (see UpdateWithRetry).
package store

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when inserting a document with an id
	// that is already present.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrConflict is returned when a Put carries a stale revision.
	ErrConflict = errors.New("revision conflict")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store closed")
)

// Doc wraps a document with its id and revision. Rev starts at 1 on insert
// and increments on every successful Put.
type Doc[T any] struct {
	ID   string
	Rev  uint64
	Data T
}

// Collection is a versioned document collection.
type Collection[T any] interface {
	// Insert creates a new document. Returns ErrAlreadyExists if the id is taken.
	Insert(ctx context.Context, id string, data T) (*Doc[T], error)

	// Get fetches the latest revision of a document. Returns ErrNotFound
	// if the document does not exist.
	Get(ctx context.Context, id string) (*Doc[T], error)

	// Put writes a full document. The stored revision must equal doc.Rev or
	// the write fails with ErrConflict. Returns the document at its new revision.
	Put(ctx context.Context, doc Doc[T]) (*Doc[T], error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all documents in the collection.
	List(ctx context.Context) ([]Doc[T], error)

	// Subscribe registers a callback invoked after every successful write.
	// The returned cancel func removes the subscription.
	Subscribe(fn func(Doc[T])) (cancel func())
}

// watchers tracks subscription callbacks for a collection.
type watchers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Doc[T])
}

func newWatchers[T any]() *watchers[T] {
	return &watchers[T]{fns: make(map[int]func(Doc[T]))}
}

func (w *watchers[T]) add(fn func(Doc[T])) func() {
	w.mu.Lock()
	id := w.next
	w.next++
	w.fns[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.fns, id)
		w.mu.Unlock()
	}
}

// notify invokes all callbacks. Called outside any storage lock so a
// subscriber may read the collection from its callback.
func (w *watchers[T]) notify(doc Doc[T]) {
	w.mu.Lock()
	fns := make([]func(Doc[T]), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(doc)
	}
}
