package docstore

import "fmt"

// Op is a comparison operator usable in a filter.
type Op string

const (
	Eq  Op = "=="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

func (o Op) valid() bool {
	switch o {
	case Eq, Lt, Lte, Gt, Gte:
		return true
	}
	return false
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter compares a (dotted) field path with a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from one collection, or from every collection
// sharing an id when Group is set. Query values are immutable; the builder
// methods return modified copies.
type Query struct {
	Collection string
	Group      bool
	Filters    []Filter
	OrderField string
	OrderDir   Direction
	Max        int
}

// Collection queries the collection at path ("posts", "users/u1/feed").
func Collection(path string) Query {
	return Query{Collection: path}
}

// CollectionGroup queries every collection named id, whatever its parent.
func CollectionGroup(id string) Query {
	return Query{Collection: id, Group: true}
}

func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, dir Direction) Query {
	q.OrderField = field
	q.OrderDir = dir
	return q
}

func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

// Validate checks the query shape before a backend runs it.
func (q Query) Validate() error {
	if q.Group {
		if q.Collection == "" || containsSlash(q.Collection) {
			return fmt.Errorf("%w: collection group %q", ErrInvalidPath, q.Collection)
		}
	} else if !IsCollectionPath(q.Collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
	}
	for _, f := range q.Filters {
		if !f.Op.valid() {
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
		if !validField(f.Field) {
			return fmt.Errorf("docstore: invalid field %q", f.Field)
		}
	}
	if q.OrderField != "" && !validField(q.OrderField) {
		return fmt.Errorf("docstore: invalid order field %q", q.OrderField)
	}
	if q.Max < 0 {
		return fmt.Errorf("docstore: negative limit %d", q.Max)
	}
	return nil
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}
