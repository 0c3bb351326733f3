package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Decode converts a document field map into a struct using its json tags.
func Decode(data Data, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("docstore: encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode document: %w", err)
	}
	return nil
}

// Clone deep copies nested maps and slices of a document.
func Clone(data Data) Data {
	if data == nil {
		return nil
	}
	out := make(Data, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Merge deep merges src into dst the way a merge Set does: nested maps are
// merged key by key, other values replace, Delete removes the key.
func Merge(dst, src Data) Data {
	if dst == nil {
		dst = Data{}
	}
	for k, v := range src {
		if IsDelete(v) {
			delete(dst, k)
			continue
		}
		if sm, ok := v.(map[string]any); ok {
			dm, ok := dst[k].(map[string]any)
			if !ok {
				dm = Data{}
			}
			dst[k] = Merge(dm, sm)
			continue
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

// Strip returns src without Delete sentinels, for plain (non-merge) sets.
func Strip(src Data) Data {
	out := Data{}
	for k, v := range src {
		if IsDelete(v) {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			out[k] = Strip(m)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// ApplyUpdate writes dotted field paths into dst.
func ApplyUpdate(dst, fields Data) {
	for k, v := range fields {
		parts := FieldPath(k)
		m := dst
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = Data{}
				m[p] = next
			}
			m = next
		}
		last := parts[len(parts)-1]
		if IsDelete(v) {
			delete(m, last)
		} else {
			m[last] = cloneValue(v)
		}
	}
}

// Lookup resolves a dotted field path inside a document.
func Lookup(data Data, field string) (any, bool) {
	var cur any = data
	for _, p := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Number converts any numeric document value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Compare orders two document values of the same kind. ok is false when the
// values are not comparable (different kinds), which excludes the document
// from range filters the way document databases do.
func Compare(a, b any) (c int, ok bool) {
	if an, aok := Number(a); aok {
		bn, bok := Number(b)
		if !bok {
			return 0, false
		}
		return cmp(an < bn, an > bn), true
	}
	switch av := a.(type) {
	case string:
		bv, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, bok := b.(bool)
		if !bok {
			return 0, false
		}
		return cmp(!av && bv, av && !bv), true
	case time.Time:
		bv, bok := b.(time.Time)
		if !bok {
			return 0, false
		}
		return cmp(av.Before(bv), av.After(bv)), true
	case nil:
		return 0, b == nil
	}
	return 0, false
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// Matches evaluates a filter against a document.
func (f Filter) Matches(data Data) bool {
	v, ok := Lookup(data, f.Field)
	if !ok {
		return false
	}
	c, ok := Compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case Eq:
		return c == 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	}
	return false
}

// Time reads a timestamp field stored either natively or as RFC 3339 text.
func Time(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
