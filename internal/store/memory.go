package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Collection implementation. It round-trips documents
// through JSON so callers never share storage-backed slices or maps, matching
// the aliasing behavior of the badger implementation.
type Memory[T any] struct {
	mu    sync.Mutex
	docs  map[string]memoryEntry
	watch *watchers[T]

	// FailPuts, when > 0, makes that many subsequent Puts fail with
	// ErrConflict regardless of revision. Used by tests to exercise the
	// conflict-retry path.
	FailPuts int
}

type memoryEntry struct {
	rev  uint64
	data []byte
}

// NewMemory creates an empty in-memory collection.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{
		docs:  make(map[string]memoryEntry),
		watch: newWatchers[T](),
	}
}

func (m *Memory[T]) Insert(ctx context.Context, id string, data T) (*Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	m.mu.Lock()
	if _, ok := m.docs[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	m.docs[id] = memoryEntry{rev: 1, data: raw}
	m.mu.Unlock()

	doc := Doc[T]{ID: id, Rev: 1, Data: data}
	m.watch.notify(doc)
	return &doc, nil
}

func (m *Memory[T]) Get(ctx context.Context, id string) (*Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entry, ok := m.docs[id]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var data T
	if err := json.Unmarshal(entry.data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	return &Doc[T]{ID: id, Rev: entry.rev, Data: data}, nil
}

func (m *Memory[T]) Put(ctx context.Context, doc Doc[T]) (*Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	m.mu.Lock()
	entry, ok := m.docs[doc.ID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
	}
	if m.FailPuts > 0 {
		m.FailPuts--
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (injected)", ErrConflict, doc.ID)
	}
	if entry.rev != doc.Rev {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s has rev %d, put carried rev %d", ErrConflict, doc.ID, entry.rev, doc.Rev)
	}
	newRev := entry.rev + 1
	m.docs[doc.ID] = memoryEntry{rev: newRev, data: raw}
	m.mu.Unlock()

	out := Doc[T]{ID: doc.ID, Rev: newRev, Data: doc.Data}
	m.watch.notify(out)
	return &out, nil
}

func (m *Memory[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory[T]) List(ctx context.Context) ([]Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	out := make([]Doc[T], 0, len(ids))
	for _, id := range ids {
		doc, err := m.Get(ctx, id)
		if err != nil {
			continue // deleted between snapshot and read
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (m *Memory[T]) Subscribe(fn func(Doc[T])) func() {
	return m.watch.add(fn)
}
