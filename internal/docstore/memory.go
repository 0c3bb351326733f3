package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultMaxAttempts bounds the optimistic retry loop of RunTransaction.
const DefaultMaxAttempts = 5

// Change describes one committed document write. Before or After is nil when
// the document did not exist on that side of the write.
type Change struct {
	Path   string
	Before Data
	After  Data
}

type memDoc struct {
	data    Data
	version uint64
}

// Memory is an in-process Store used for local development and tests. It keeps
// the semantics the services rely on: merge writes, collection groups, atomic
// batches and optimistic transactions.
type Memory struct {
	mu          sync.RWMutex
	docs        map[string]*memDoc
	colVersions map[string]uint64
	grpVersions map[string]uint64
	clock       uint64
	hooks       []func(Change)
	maxAttempts int
}

func NewMemory() *Memory {
	return &Memory{
		docs:        map[string]*memDoc{},
		colVersions: map[string]uint64{},
		grpVersions: map[string]uint64{},
		maxAttempts: DefaultMaxAttempts,
	}
}

// OnChange registers fn to be called after every committed document write,
// outside the store lock.
func (m *Memory) OnChange(fn func(Change)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Get(ctx context.Context, path string) (*Snapshot, error) {
	if !IsDocumentPath(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(path), nil
}

func (m *Memory) snapshotLocked(path string) *Snapshot {
	_, id := SplitDocument(path)
	s := &Snapshot{Path: path, ID: id}
	if d, ok := m.docs[path]; ok {
		s.Data = Clone(d.data)
	}
	return s
}

func (m *Memory) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryLocked(q), nil
}

func (m *Memory) Count(ctx context.Context, q Query) (int, error) {
	docs, err := m.Documents(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (m *Memory) queryLocked(q Query) []*Snapshot {
	var out []*Snapshot
	for path, d := range m.docs {
		parent, _ := SplitDocument(path)
		if q.Group {
			if CollectionID(parent) != q.Collection {
				continue
			}
		} else if parent != q.Collection {
			continue
		}
		if !matchesAll(q.Filters, d.data) {
			continue
		}
		if q.OrderField != "" {
			if _, ok := Lookup(d.data, q.OrderField); !ok {
				continue
			}
		}
		out = append(out, m.snapshotLocked(path))
	}
	sort.Slice(out, func(i, j int) bool {
		if q.OrderField != "" {
			a, _ := Lookup(out[i].Data, q.OrderField)
			b, _ := Lookup(out[j].Data, q.OrderField)
			if c, ok := Compare(a, b); ok && c != 0 {
				if q.OrderDir == Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].Path < out[j].Path
	})
	if q.Max > 0 && len(out) > q.Max {
		out = out[:q.Max]
	}
	return out
}

func matchesAll(filters []Filter, data Data) bool {
	for _, f := range filters {
		if !f.Matches(data) {
			return false
		}
	}
	return true
}

func (m *Memory) Set(ctx context.Context, path string, data Data, merge bool) error {
	return m.commit([]Write{SetWrite(path, data, merge)})
}

func (m *Memory) Update(ctx context.Context, path string, data Data) error {
	return m.commit([]Write{{Kind: WriteUpdate, Path: path, Data: data}})
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	return m.commit([]Write{DeleteWrite(path)})
}

func (m *Memory) commit(writes []Write) error {
	m.mu.Lock()
	changes, err := m.commitLocked(writes)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify(changes)
	return nil
}

// commitLocked applies writes atomically: either every write lands or none does.
func (m *Memory) commitLocked(writes []Write) ([]Change, error) {
	staged := map[string]Data{}
	before := map[string]Data{}
	var order []string
	current := func(path string) Data {
		if d, ok := staged[path]; ok {
			return d
		}
		if d, ok := m.docs[path]; ok {
			return d.data
		}
		return nil
	}
	for _, w := range writes {
		next, err := w.Apply(current(w.Path))
		if err != nil {
			return nil, err
		}
		if _, seen := before[w.Path]; !seen {
			if d, ok := m.docs[w.Path]; ok {
				before[w.Path] = d.data
			} else {
				before[w.Path] = nil
			}
			order = append(order, w.Path)
		}
		staged[w.Path] = next
	}

	changes := make([]Change, 0, len(order))
	for _, path := range order {
		m.clock++
		next := staged[path]
		if next == nil {
			delete(m.docs, path)
		} else {
			m.docs[path] = &memDoc{data: next, version: m.clock}
		}
		parent, _ := SplitDocument(path)
		m.colVersions[parent] = m.clock
		m.grpVersions[CollectionID(parent)] = m.clock
		if before[path] == nil && next == nil {
			continue
		}
		changes = append(changes, Change{Path: path, Before: Clone(before[path]), After: Clone(next)})
	}
	return changes, nil
}

func (m *Memory) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	m.mu.RLock()
	hooks := append([]func(Change){}, m.hooks...)
	m.mu.RUnlock()
	for _, c := range changes {
		for _, h := range hooks {
			h(c)
		}
	}
}

func (m *Memory) Batch() Batch {
	return &memBatch{m: m}
}

type memBatch struct {
	m      *Memory
	writes []Write
}

func (b *memBatch) Set(path string, data Data, merge bool) {
	b.writes = append(b.writes, SetWrite(path, data, merge))
}

func (b *memBatch) Update(path string, data Data) {
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Path: path, Data: data})
}

func (b *memBatch) Delete(path string) {
	b.writes = append(b.writes, DeleteWrite(path))
}

func (b *memBatch) Len() int { return len(b.writes) }

func (b *memBatch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchWrites {
		return fmt.Errorf("docstore: batch of %d writes exceeds limit %d", len(b.writes), MaxBatchWrites)
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.m.commit(b.writes)
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{
			m:        m,
			docReads: map[string]uint64{},
			colReads: map[string]uint64{},
			grpReads: map[string]uint64{},
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		m.mu.Lock()
		if !tx.validLocked() {
			m.mu.Unlock()
			continue
		}
		changes, err := m.commitLocked(tx.writes)
		m.mu.Unlock()
		if err != nil {
			return err
		}
		m.notify(changes)
		return nil
	}
	return ErrConflict
}

// memTx records the version of everything it reads; the commit is rejected
// (and fn retried) when any of those versions moved.
type memTx struct {
	m        *Memory
	docReads map[string]uint64
	colReads map[string]uint64
	grpReads map[string]uint64
	writes   []Write
}

func (t *memTx) Get(ctx context.Context, path string) (*Snapshot, error) {
	if !IsDocumentPath(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	var v uint64
	if d, ok := t.m.docs[path]; ok {
		v = d.version
	}
	t.docReads[path] = v
	return t.m.snapshotLocked(path), nil
}

func (t *memTx) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if q.Group {
		t.grpReads[q.Collection] = t.m.grpVersions[q.Collection]
	} else {
		t.colReads[q.Collection] = t.m.colVersions[q.Collection]
	}
	return t.m.queryLocked(q), nil
}

func (t *memTx) Set(path string, data Data, merge bool) {
	t.writes = append(t.writes, SetWrite(path, data, merge))
}

func (t *memTx) Update(path string, data Data) {
	t.writes = append(t.writes, Write{Kind: WriteUpdate, Path: path, Data: data})
}

func (t *memTx) Delete(path string) {
	t.writes = append(t.writes, DeleteWrite(path))
}

func (t *memTx) validLocked() bool {
	for path, v := range t.docReads {
		var cur uint64
		if d, ok := t.m.docs[path]; ok {
			cur = d.version
		}
		if cur != v {
			return false
		}
	}
	for col, v := range t.colReads {
		if t.m.colVersions[col] != v {
			return false
		}
	}
	for grp, v := range t.grpReads {
		if t.m.grpVersions[grp] != v {
			return false
		}
	}
	return true
}
