package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// DB wraps a Badger database instance and hands out versioned collections.
type DB struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) a Badger database at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil      // Disable Badger's internal logging
	opts.SyncWrites = true // Sync writes to disk to prevent corruption on crashes

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	logger.Info("document store opened", "path", path)
	return &DB{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// envelope is the on-disk form of a document: revision plus payload.
type envelope struct {
	Rev  uint64          `json:"rev"`
	Data json.RawMessage `json:"data"`
}

// Badger is a Collection backed by a key prefix in a shared Badger database.
type Badger[T any] struct {
	db     *DB
	prefix string
	watch  *watchers[T]
}

// NewBadger creates a collection under the given key prefix (e.g. "chapter:").
func NewBadger[T any](db *DB, prefix string) *Badger[T] {
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Badger[T]{db: db, prefix: prefix, watch: newWatchers[T]()}
}

func (b *Badger[T]) key(id string) []byte {
	return []byte(b.prefix + id)
}

func (b *Badger[T]) Insert(ctx context.Context, id string, data T) (*Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	env, err := json.Marshal(envelope{Rev: 1, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = b.db.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(b.key(id))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}
		return txn.Set(b.key(id), env)
	})
	if err != nil {
		return nil, err
	}

	doc := Doc[T]{ID: id, Rev: 1, Data: data}
	b.watch.notify(doc)
	return &doc, nil
}

func (b *Badger[T]) Get(ctx context.Context, id string) (*Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var env envelope
	err := b.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		return nil, err
	}

	var data T
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	return &Doc[T]{ID: id, Rev: env.Rev, Data: data}, nil
}

func (b *Badger[T]) Put(ctx context.Context, doc Doc[T]) (*Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	var newRev uint64
	err = b.db.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(doc.ID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		if env.Rev != doc.Rev {
			return fmt.Errorf("%w: %s has rev %d, put carried rev %d", ErrConflict, doc.ID, env.Rev, doc.Rev)
		}

		newRev = env.Rev + 1
		out, err := json.Marshal(envelope{Rev: newRev, Data: raw})
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
		return txn.Set(b.key(doc.ID), out)
	})
	if err != nil {
		return nil, err
	}

	out := Doc[T]{ID: doc.ID, Rev: newRev, Data: doc.Data}
	b.watch.notify(out)
	return &out, nil
}

func (b *Badger[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(b.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (b *Badger[T]) List(ctx context.Context) ([]Doc[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Doc[T]
	err := b.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(b.prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), b.prefix)

			var env envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			var data T
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("failed to unmarshal document %s: %w", id, err)
			}
			out = append(out, Doc[T]{ID: id, Rev: env.Rev, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger[T]) Subscribe(fn func(Doc[T])) func() {
	return b.watch.add(fn)
}
