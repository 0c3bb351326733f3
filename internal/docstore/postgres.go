package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// document is one row of the documents table. Every collection shares the
// table; parent holds the collection path and collection_id its last segment.
type document struct {
	Path         string    `gorm:"primaryKey"`
	Parent       string    `gorm:"index;not null"`
	CollectionID string    `gorm:"index;not null"`
	Data         string    `gorm:"type:jsonb;not null"`
	Version      int64     `gorm:"not null;default:1"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (document) TableName() string { return "documents" }

// Postgres stores documents as JSONB rows through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with dsn and migrates the documents table.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgres(db)
}

func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) Get(ctx context.Context, path string) (*Snapshot, error) {
	return getRow(p.db.WithContext(ctx), path, false)
}

func getRow(db *gorm.DB, path string, lock bool) (*Snapshot, error) {
	if !IsDocumentPath(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	_, id := SplitDocument(path)
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row document
	err := db.Where("path = ?", path).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Snapshot{Path: path, ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	data, err := decodeJSON(row.Data)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return &Snapshot{Path: path, ID: id, Data: data}, nil
}

// pgFieldPath renders a validated dotted field as a Postgres text[] literal.
func pgFieldPath(field string) string {
	return "'{" + strings.Join(FieldPath(field), ",") + "}'"
}

func scope(db *gorm.DB, q Query) (*gorm.DB, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	db = db.Model(&document{})
	if q.Group {
		db = db.Where("collection_id = ?", q.Collection)
	} else {
		db = db.Where("parent = ?", q.Collection)
	}
	for _, f := range q.Filters {
		val, err := encodeJSON(normalize(f.Value))
		if err != nil {
			return nil, err
		}
		db = db.Where(fmt.Sprintf("data #> %s::text[] %s ?::jsonb", pgFieldPath(f.Field), sqlOp(f.Op)), val)
	}
	if q.OrderField != "" {
		field := pgFieldPath(q.OrderField)
		dir := "ASC"
		if q.OrderDir == Desc {
			dir = "DESC"
		}
		db = db.Where(fmt.Sprintf("data #> %s::text[] IS NOT NULL", field)).
			Order(fmt.Sprintf("data #> %s::text[] %s", field, dir))
	}
	db = db.Order("path")
	if q.Max > 0 {
		db = db.Limit(q.Max)
	}
	return db, nil
}

func sqlOp(op Op) string {
	if op == Eq {
		return "="
	}
	return string(op)
}

func queryRows(db *gorm.DB) ([]*Snapshot, error) {
	var rows []document
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(rows))
	for _, r := range rows {
		data, err := decodeJSON(r.Data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Path, err)
		}
		_, id := SplitDocument(r.Path)
		out = append(out, &Snapshot{Path: r.Path, ID: id, Data: data})
	}
	return out, nil
}

func (p *Postgres) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	db, err := scope(p.db.WithContext(ctx), q)
	if err != nil {
		return nil, err
	}
	out, err := queryRows(db)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context, q Query) (int, error) {
	q.Max = 0
	q.OrderField = ""
	db, err := scope(p.db.WithContext(ctx), q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	return int(n), nil
}

func (p *Postgres) Set(ctx context.Context, path string, data Data, merge bool) error {
	return p.apply(ctx, []Write{SetWrite(path, data, merge)})
}

func (p *Postgres) Update(ctx context.Context, path string, data Data) error {
	return p.apply(ctx, []Write{{Kind: WriteUpdate, Path: path, Data: data}})
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	return p.apply(ctx, []Write{DeleteWrite(path)})
}

func (p *Postgres) apply(ctx context.Context, writes []Write) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyWrites(tx, writes)
	})
}

// applyWrites locks each target row, computes the new document and writes it
// back. It must run inside a transaction.
func applyWrites(tx *gorm.DB, writes []Write) error {
	for _, w := range writes {
		cur, err := getRow(tx, w.Path, true)
		if err != nil {
			return err
		}
		next, err := w.Apply(cur.Data)
		if err != nil {
			return err
		}
		if next == nil {
			if err := tx.Where("path = ?", w.Path).Delete(&document{}).Error; err != nil {
				return fmt.Errorf("delete %s: %w", w.Path, err)
			}
			continue
		}
		raw, err := encodeJSON(normalize(next))
		if err != nil {
			return err
		}
		parent, _ := SplitDocument(w.Path)
		row := document{
			Path:         w.Path,
			Parent:       parent,
			CollectionID: CollectionID(parent),
			Data:         raw,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "path"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "data"}, Value: gorm.Expr("EXCLUDED.data")},
				{Column: clause.Column{Name: "version"}, Value: gorm.Expr("documents.version + 1")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("EXCLUDED.updated_at")},
			},
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("write %s: %w", w.Path, err)
		}
	}
	return nil
}

func (p *Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt < DefaultMaxAttempts; attempt++ {
		err = p.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			t := &pgTx{db: gtx}
			if err := fn(ctx, t); err != nil {
				return err
			}
			return applyWrites(gtx, t.writes)
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

// retryable reports serialization failures and deadlocks.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct {
	db     *gorm.DB
	writes []Write
}

func (t *pgTx) Get(ctx context.Context, path string) (*Snapshot, error) {
	return getRow(t.db, path, false)
}

func (t *pgTx) Documents(ctx context.Context, q Query) ([]*Snapshot, error) {
	db, err := scope(t.db, q)
	if err != nil {
		return nil, err
	}
	return queryRows(db)
}

func (t *pgTx) Set(path string, data Data, merge bool) {
	t.writes = append(t.writes, SetWrite(path, data, merge))
}

func (t *pgTx) Update(path string, data Data) {
	t.writes = append(t.writes, Write{Kind: WriteUpdate, Path: path, Data: data})
}

func (t *pgTx) Delete(path string) {
	t.writes = append(t.writes, DeleteWrite(path))
}

func (p *Postgres) Batch() Batch {
	return &pgBatch{p: p}
}

type pgBatch struct {
	p      *Postgres
	writes []Write
}

func (b *pgBatch) Set(path string, data Data, merge bool) {
	b.writes = append(b.writes, SetWrite(path, data, merge))
}

func (b *pgBatch) Update(path string, data Data) {
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Path: path, Data: data})
}

func (b *pgBatch) Delete(path string) {
	b.writes = append(b.writes, DeleteWrite(path))
}

func (b *pgBatch) Len() int { return len(b.writes) }

func (b *pgBatch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchWrites {
		return fmt.Errorf("docstore: batch of %d writes exceeds limit %d", len(b.writes), MaxBatchWrites)
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.p.apply(ctx, b.writes)
}

// normalize turns timestamps into UTC RFC 3339 text so JSONB comparisons
// order them chronologically.
func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalize(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalize(x)
		}
		return out
	}
	return v
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("docstore: encode: %w", err)
	}
	return string(raw), nil
}

func decodeJSON(raw string) (Data, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var data Data
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return numbers(data).(Data), nil
}

// numbers converts json.Number leaves to int64 or float64.
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, x := range t {
			t[k] = numbers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = numbers(x)
		}
		return t
	}
	return v
}
