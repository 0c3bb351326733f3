package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

func resultFor(results []TargetResult, group string) TargetResult {
	for _, r := range results {
		if r.Group == group {
			return r
		}
	}
	return TargetResult{}
}

func TestPropagateChunksWrites(t *testing.T) {
	store := docstore.NewMemory()
	for i := 0; i < 7; i++ {
		seed(t, store, models.FeedEntryPath(fmt.Sprintf("u%d", i), "p1"), docstore.Data{"content_id": "p1", "score": 0})
	}
	p := NewPropagator(store, 3)

	results := p.Propagate(context.Background(), EntityPost, "p1", docstore.Data{"score": 0.5})
	require.Empty(t, Failed(results))
	feed := resultFor(results, models.Feed)
	assert.Equal(t, 7, feed.Matched)
	assert.Equal(t, 7, feed.Updated)
	assert.Equal(t, 7, count(t, store, docstore.CollectionGroup(models.Feed).Where("score", docstore.Eq, 0.5)))
	assert.Equal(t, 0, resultFor(results, models.Bookmarks).Matched)
}

func TestPropagateSkipsUpToDateCopies(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, "users/u1/bookmarks/p1", docstore.Data{"id": "p1", "score": 0.5})
	seed(t, store, "users/u2/bookmarks/p1", docstore.Data{"id": "p1", "score": 0.1})
	p := NewPropagator(store, 500)

	var changed []string
	store.OnChange(func(c docstore.Change) { changed = append(changed, c.Path) })
	results := p.Propagate(context.Background(), EntityPost, "p1", docstore.Data{"score": 0.5})

	bookmarks := resultFor(results, models.Bookmarks)
	assert.Equal(t, 2, bookmarks.Matched)
	assert.Equal(t, 1, bookmarks.Updated)
	assert.Equal(t, []string{"users/u2/bookmarks/p1"}, changed)
}

func TestPropagateIsolatesFailingTarget(t *testing.T) {
	mem := docstore.NewMemory()
	seed(t, mem, "users/u1/bookmarks/p1", docstore.Data{"id": "p1", "score": 0})
	seed(t, mem, "users/u1/readings/p1", docstore.Data{"id": "p1", "score": 0})
	p := NewPropagator(failingStore{Store: mem, group: models.Bookmarks}, 500)

	results := p.Propagate(context.Background(), EntityPost, "p1", docstore.Data{"score": 0.9})
	assert.Equal(t, []string{models.Bookmarks}, Failed(results))
	assert.Error(t, resultFor(results, models.Bookmarks).Err)
	assert.NoError(t, resultFor(results, models.Readings).Err)
	assert.Equal(t, 0.9, read(t, mem, "users/u1/readings/p1")["score"])
	assert.Equal(t, 0, read(t, mem, "users/u1/bookmarks/p1")["score"])
}

func TestPropagateNeverTouchesAuthoritativeDoc(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, "users/u1", docstore.Data{"id": "u1", "score": 3.0})
	seed(t, store, "users/u2/subscribers/u1", docstore.Data{"id": "u1", "score": 1.0})
	p := NewPropagator(store, 500)

	results := p.Propagate(context.Background(), EntityUser, "u1", docstore.Data{"score": 2.0})
	require.Empty(t, Failed(results))
	assert.Equal(t, 3.0, read(t, store, "users/u1")["score"])
	assert.Equal(t, 2.0, read(t, store, "users/u2/subscribers/u1")["score"])
}

func TestHolds(t *testing.T) {
	doc := docstore.Data{"score": 1, "top_topic": "go", "tags": []any{"a"}}
	assert.True(t, holds(doc, docstore.Data{"score": 1.0}))
	assert.True(t, holds(doc, docstore.Data{"top_topic": "go", "tags": []any{"a"}}))
	assert.False(t, holds(doc, docstore.Data{"score": 2}))
	assert.False(t, holds(doc, docstore.Data{"subscribers": 0}))
	assert.False(t, holds(doc, docstore.Data{"top_topic": 1}))
}
