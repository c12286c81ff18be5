package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrDisabled  = errors.New("storage disabled")
	ErrNotFound  = errors.New("document not found")
	ErrClosed    = errors.New("storage closed")
	ErrInvalidID = errors.New("invalid document id")
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON array file per collection under Path (a directory)
//   - "sqlite": SQLite database file; a Path without extension is treated as
//     a directory holding missionctl.db
//
// "none" disables storage; Open then returns ErrDisabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Document is one JSON object in a collection. Body always carries the
// document id under the "id" key.
type Document struct {
	ID   string
	Body json.RawMessage
}

// Store is a small collection/document store.
//
// Implementations are safe for concurrent use and keep insertion order for List.
type Store interface {
	List(ctx context.Context, collection string) ([]Document, error)
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Put inserts or replaces the document with doc.ID.
	Put(ctx context.Context, collection string, doc Document) error
	// Patch merges fields into the stored object; a nil value removes the key.
	// It returns ErrNotFound when id is absent.
	Patch(ctx context.Context, collection, id string, fields map[string]any) (Document, error)
	// Delete returns ErrNotFound when id is absent.
	Delete(ctx context.Context, collection, id string) error
	Close() error
}
