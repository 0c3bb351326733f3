package docstore

import (
	"context"
	"errors"
)

// MaxBatchWrites is the largest number of writes a single atomic batch may hold.
const MaxBatchWrites = 500

var (
	ErrNotFound    = errors.New("docstore: document not found")
	ErrConflict    = errors.New("docstore: transaction conflict, retries exhausted")
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// Data is the field map of a single document.
type Data = map[string]any

// deleteField marks a field for removal in merge writes.
type deleteField struct{}

// Delete removes the field it is assigned to when used in a merge Set or Update.
var Delete any = deleteField{}

// IsDelete reports whether v is the Delete sentinel.
func IsDelete(v any) bool {
	_, ok := v.(deleteField)
	return ok
}

// Snapshot is a point-in-time read of one document. A snapshot of a missing
// document has nil Data.
type Snapshot struct {
	Path string
	ID   string
	Data Data
}

func (s *Snapshot) Exists() bool {
	return s != nil && s.Data != nil
}

// DataTo decodes the document into v.
func (s *Snapshot) DataTo(v any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	return Decode(s.Data, v)
}

// Reader is the read half shared by Store and Tx.
type Reader interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	Documents(ctx context.Context, q Query) ([]*Snapshot, error)
}

// Writer is the write half shared by Batch and Tx.
type Writer interface {
	Set(path string, data Data, merge bool)
	Update(path string, data Data)
	Delete(path string)
}

// Store is the document database capability handed to every service.
type Store interface {
	Reader

	Set(ctx context.Context, path string, data Data, merge bool) error
	// Update writes the given field paths (dotted keys allowed) and fails with
	// ErrNotFound when the document does not exist.
	Update(ctx context.Context, path string, data Data) error
	Delete(ctx context.Context, path string) error

	Count(ctx context.Context, q Query) (int, error)

	// RunTransaction runs fn with optimistic concurrency, retrying it when a
	// concurrent commit touched anything fn read. All reads must precede writes.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Batch() Batch

	Close() error
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	Reader
	Writer
}

// Batch groups writes into one atomic commit of at most MaxBatchWrites operations.
type Batch interface {
	Writer
	Len() int
	Commit(ctx context.Context) error
}
