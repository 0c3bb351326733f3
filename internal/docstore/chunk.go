package docstore

import (
	"context"
	"fmt"
)

type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteUpdate
	WriteDelete
)

// Write is one queued batch operation.
type Write struct {
	Kind  WriteKind
	Path  string
	Data  Data
	Merge bool
}

func SetWrite(path string, data Data, merge bool) Write {
	return Write{Kind: WriteSet, Path: path, Data: data, Merge: merge}
}

func DeleteWrite(path string) Write {
	return Write{Kind: WriteDelete, Path: path}
}

// CommitChunked commits writes in consecutive atomic batches of at most size
// operations (MaxBatchWrites when size is out of range). Chunks are committed
// in order; the first failing chunk stops the run. It returns how many writes
// were committed. An empty write list is a no-op.
func CommitChunked(ctx context.Context, s Store, writes []Write, size int) (int, error) {
	if size <= 0 || size > MaxBatchWrites {
		size = MaxBatchWrites
	}
	done := 0
	for start := 0; start < len(writes); start += size {
		end := min(start+size, len(writes))
		b := s.Batch()
		for _, w := range writes[start:end] {
			switch w.Kind {
			case WriteSet:
				b.Set(w.Path, w.Data, w.Merge)
			case WriteUpdate:
				b.Update(w.Path, w.Data)
			case WriteDelete:
				b.Delete(w.Path)
			}
		}
		if err := b.Commit(ctx); err != nil {
			return done, fmt.Errorf("commit chunk %d-%d: %w", start, end, err)
		}
		done = end
	}
	return done, nil
}

// Apply returns the document that results from applying w to cur. A nil
// result means the document no longer exists.
func (w Write) Apply(cur Data) (Data, error) {
	if !IsDocumentPath(w.Path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, w.Path)
	}
	switch w.Kind {
	case WriteSet:
		if w.Merge {
			return Merge(Clone(cur), w.Data), nil
		}
		return Strip(w.Data), nil
	case WriteUpdate:
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, w.Path)
		}
		next := Clone(cur)
		ApplyUpdate(next, w.Data)
		return next, nil
	case WriteDelete:
		return nil, nil
	}
	return nil, fmt.Errorf("docstore: unknown write kind %d", w.Kind)
}
