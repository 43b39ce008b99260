package store

import (
	"log/slog"

	"github.com/cadence-reader/cadence/internal/types"
)

// Blob holds raw bytes (source EPUB files, cover images) keyed by id.
type Blob struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Documents groups the collections the pipeline reads and writes.
type Documents struct {
	Books    Collection[types.Book]
	Chapters Collection[types.Chapter]
	Reading  Collection[types.ReadingState]
	Blobs    Collection[Blob]

	db *DB // nil for in-memory documents
}

// OpenDocuments opens badger-backed collections at path.
func OpenDocuments(path string, logger *slog.Logger) (*Documents, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	return &Documents{
		Books:    NewBadger[types.Book](db, "book"),
		Chapters: NewBadger[types.Chapter](db, "chapter"),
		Reading:  NewBadger[types.ReadingState](db, "reading"),
		Blobs:    NewBadger[Blob](db, "blob"),
		db:       db,
	}, nil
}

// NewMemoryDocuments creates in-memory collections for tests and dry runs.
func NewMemoryDocuments() *Documents {
	return &Documents{
		Books:    NewMemory[types.Book](),
		Chapters: NewMemory[types.Chapter](),
		Reading:  NewMemory[types.ReadingState](),
		Blobs:    NewMemory[Blob](),
	}
}

// Close closes the underlying database, if any.
func (d *Documents) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
