package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.True(t, IsDocumentPath("users/u1"))
	assert.True(t, IsDocumentPath("users/u1/feed/p1"))
	assert.False(t, IsDocumentPath("users"))
	assert.False(t, IsDocumentPath("users//u1"))
	assert.False(t, IsDocumentPath(""))
	assert.True(t, IsCollectionPath("users/u1/feed"))

	col, id := SplitDocument("users/u1/feed/p1")
	assert.Equal(t, "users/u1/feed", col)
	assert.Equal(t, "p1", id)
	assert.Equal(t, "feed", CollectionID(col))
	assert.Equal(t, "posts/p1/ratings/u2", Join("posts", "p1", "ratings", "u2"))
}

func TestFilterMatches(t *testing.T) {
	doc := Data{"score": int64(3), "author": Data{"id": "u1"}, "at": time.Unix(100, 0)}

	assert.True(t, Filter{Field: "score", Op: Gt, Value: 2.5}.Matches(doc))
	assert.True(t, Filter{Field: "score", Op: Eq, Value: 3}.Matches(doc))
	assert.False(t, Filter{Field: "score", Op: Lt, Value: 3}.Matches(doc))
	assert.True(t, Filter{Field: "author.id", Op: Eq, Value: "u1"}.Matches(doc))
	assert.False(t, Filter{Field: "author.id", Op: Eq, Value: 1}.Matches(doc))
	assert.False(t, Filter{Field: "missing", Op: Eq, Value: nil}.Matches(doc))
	assert.True(t, Filter{Field: "at", Op: Lt, Value: time.Unix(200, 0)}.Matches(doc))
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, Collection("users/u1/feed").Where("score", Gte, 1).Validate())
	assert.Error(t, CollectionGroup("users/u1").Validate())
	assert.Error(t, Collection("posts").Where("bad field", Eq, 1).Validate())
	assert.Error(t, Collection("posts").Where("score", "!=", 1).Validate())
	assert.Error(t, Collection("posts").Limit(-1).Validate())
}

func TestQueryBuilderCopies(t *testing.T) {
	base := Collection("posts").Where("a", Eq, 1)
	left := base.Where("b", Eq, 2)
	right := base.Where("c", Eq, 3)
	assert.Len(t, base.Filters, 1)
	assert.Equal(t, "b", left.Filters[1].Field)
	assert.Equal(t, "c", right.Filters[1].Field)
}

func TestDecode(t *testing.T) {
	var out struct {
		Score float64 `json:"score"`
		Title string  `json:"title"`
	}
	snap := &Snapshot{Path: "posts/p1", ID: "p1", Data: Data{"score": int64(2), "title": "x"}}
	require.NoError(t, snap.DataTo(&out))
	assert.Equal(t, 2.0, out.Score)
	assert.Equal(t, "x", out.Title)

	missing := &Snapshot{Path: "posts/p2", ID: "p2"}
	assert.ErrorIs(t, missing.DataTo(&out), ErrNotFound)
}

func TestTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	got, ok := Time(at)
	assert.True(t, ok)
	assert.Equal(t, at, got)

	got, ok = Time(at.Format(time.RFC3339Nano))
	assert.True(t, ok)
	assert.True(t, at.Equal(got))

	_, ok = Time(12)
	assert.False(t, ok)
}

func TestNormalizeAndNumbers(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	n := normalize(Data{"at": at, "list": []any{at}}).(map[string]any)
	assert.Equal(t, "2024-05-01T09:00:00Z", n["at"])
	assert.Equal(t, []any{"2024-05-01T09:00:00Z"}, n["list"])

	data, err := decodeJSON(`{"a": 1, "b": 1.5, "c": {"d": [2]}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), data["a"])
	assert.Equal(t, 1.5, data["b"])
	assert.Equal(t, []any{int64(2)}, data["c"].(map[string]any)["d"])
}
