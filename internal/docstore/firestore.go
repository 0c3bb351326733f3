package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore adapts a Cloud Firestore client to Store.
type Firestore struct {
	client *firestore.Client
}

// OpenFirestore connects to the given project and database ("" selects the
// default database).
func OpenFirestore(ctx context.Context, projectID, database string) (*Firestore, error) {
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) doc(path string) (*firestore.DocumentRef, error) {
	if !IsDocumentPath(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	ref := f.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func (f *Firestore) query(q Query) (firestore.Query, error) {
	if err := q.Validate(); err != nil {
		return firestore.Query{}, err
	}
	var fq firestore.Query
	if q.Group {
		fq = f.client.CollectionGroup(q.Collection).Query
	} else {
		col := f.client.Collection(q.Collection)
		if col == nil {
			return firestore.Query{}, fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
		}
		fq = col.Query
	}
	for _, flt := range q.Filters {
		fq = fq.Where(flt.Field, string(flt.Op), flt.Value)
	}
	if q.OrderField != "" {
		dir := firestore.Asc
		if q.OrderDir == Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderField, dir)
	}
	if q.Max > 0 {
		fq = fq.Limit(q.Max)
	}
	return fq, nil
}

func (f *Firestore) Get(ctx context.Context, path string) (*Snapshot, error) {
	ref, err := f.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	return fromFirestore(path, ref.ID, snap, err)
}

func fromFirestore(path, id string, snap *firestore.DocumentSnapshot, err error) (*Snapshot, error) {
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &Snapshot{Path: path, ID: id}, nil
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	out := &Snapshot{Path: path, ID: id}
	if snap.Exists() {
		out.Data = snap.Data()
	}
	return out, nil
}

// relativePath strips the "projects/p/databases/d/documents/" prefix.
func relativePath(ref *firestore.DocumentRef) string {
	const marker = "/documents/"
	if i := strings.Index(ref.Path, marker); i >= 0 {
		return ref.Path[i+len(marker):]
	}
	return ref.Path
}

func collect(it *firestore.DocumentIterator) ([]*Snapshot, error) {
	docs, err := it.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, &Snapshot{Path: relativePath(d.Ref), ID: d.Ref.ID, Data: d.Data()})
	}
	return out, nil
}

func (f *Firestore) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	fq, err := f.query(q)
	if err != nil {
		return nil, err
	}
	out, err := collect(fq.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return out, nil
}

func (f *Firestore) Count(ctx context.Context, q Query) (int, error) {
	fq, err := f.query(q)
	if err != nil {
		return 0, err
	}
	res, err := fq.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected aggregation result %T", q.Collection, res["all"])
	}
	return int(v.GetIntegerValue()), nil
}

func (f *Firestore) Set(ctx context.Context, path string, data Data, merge bool) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	if merge {
		_, err = ref.Set(ctx, toFirestore(data), firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, Strip(data))
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, path string, data Data) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates(data)); err != nil {
		return wrapUpdate(path, err)
	}
	return nil
}

func wrapUpdate(path string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("update %s: %w", path, err)
}

func (f *Firestore) Delete(ctx context.Context, path string) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// toFirestore swaps the package Delete sentinel for firestore.Delete.
func toFirestore(data Data) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case deleteField:
			out[k] = firestore.Delete
		case map[string]any:
			out[k] = toFirestore(t)
		default:
			out[k] = v
		}
	}
	return out
}

func updates(data Data) []firestore.Update {
	out := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		if IsDelete(v) {
			v = firestore.Delete
		}
		out = append(out, firestore.Update{Path: k, Value: v})
	}
	return out
}

func (f *Firestore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		ft := &fsTx{f: f, tx: t}
		if err := fn(ctx, ft); err != nil {
			return err
		}
		return ft.err
	}, firestore.MaxAttempts(DefaultMaxAttempts))
	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// fsTx keeps the first write error so the transaction fails before commit.
type fsTx struct {
	f   *Firestore
	tx  *firestore.Transaction
	err error
}

func (t *fsTx) Get(ctx context.Context, path string) (*Snapshot, error) {
	ref, err := t.f.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := t.tx.Get(ref)
	return fromFirestore(path, ref.ID, snap, err)
}

func (t *fsTx) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	fq, err := t.f.query(q)
	if err != nil {
		return nil, err
	}
	return collect(t.tx.Documents(fq))
}

func (t *fsTx) record(err error) {
	if err != nil && t.err == nil {
		t.err = err
	}
}

func (t *fsTx) Set(path string, data Data, merge bool) {
	ref, err := t.f.doc(path)
	if err != nil {
		t.record(err)
		return
	}
	if merge {
		t.record(t.tx.Set(ref, toFirestore(data), firestore.MergeAll))
	} else {
		t.record(t.tx.Set(ref, Strip(data)))
	}
}

func (t *fsTx) Update(path string, data Data) {
	ref, err := t.f.doc(path)
	if err != nil {
		t.record(err)
		return
	}
	t.record(t.tx.Update(ref, updates(data)))
}

func (t *fsTx) Delete(path string) {
	ref, err := t.f.doc(path)
	if err != nil {
		t.record(err)
		return
	}
	t.record(t.tx.Delete(ref))
}

func (f *Firestore) Batch() Batch {
	return &fsBatch{f: f, wb: f.client.Batch()}
}

type fsBatch struct {
	f   *Firestore
	wb  *firestore.WriteBatch
	n   int
	err error
}

func (b *fsBatch) Set(path string, data Data, merge bool) {
	ref, err := b.f.doc(path)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return
	}
	if merge {
		b.wb.Set(ref, toFirestore(data), firestore.MergeAll)
	} else {
		b.wb.Set(ref, Strip(data))
	}
	b.n++
}

func (b *fsBatch) Update(path string, data Data) {
	ref, err := b.f.doc(path)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return
	}
	b.wb.Update(ref, updates(data))
	b.n++
}

func (b *fsBatch) Delete(path string) {
	ref, err := b.f.doc(path)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return
	}
	b.wb.Delete(ref)
	b.n++
}

func (b *fsBatch) Len() int { return b.n }

func (b *fsBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if b.n == 0 {
		return nil
	}
	if b.n > MaxBatchWrites {
		return fmt.Errorf("docstore: batch of %d writes exceeds limit %d", b.n, MaxBatchWrites)
	}
	if _, err := b.wb.Commit(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
