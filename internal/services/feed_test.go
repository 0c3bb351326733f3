package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

func TestFanOutPost(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "users/author/subscribers/s1", docstore.Data{"id": "s1"})
	seed(t, store, "users/author/subscribers/s2", docstore.Data{"id": "s2"})
	seed(t, store, "users/other/subscribers/s3", docstore.Data{"id": "s3"})
	post := &models.Post{
		ID:    "p1",
		Title: "hello",
		User:  models.UserRef{ID: "author", Name: "Ana"},
		Topic: models.TopicRef{ID: "t1", Title: "go"},
		Score: 0.25,
	}

	n, err := svc.Feed.FanOutPost(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, reader := range []string{"author", "s1", "s2"} {
		entry := read(t, store, models.FeedEntryPath(reader, "p1"))
		require.NotNil(t, entry, reader)
		assert.Equal(t, "p1", entry["content_id"])
		assert.Equal(t, "hello", entry["title"])
		assert.Equal(t, 0.25, entry["score"])
		assert.Equal(t, "author", entry["user"].(map[string]any)["id"])
	}
	assert.Nil(t, read(t, store, models.FeedEntryPath("s3", "p1")))

	// Replaying the trigger rewrites the same entries.
	_, err = svc.Feed.FanOutPost(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 3, count(t, store, docstore.CollectionGroup(models.Feed)))
}

func TestFanOutPostSkipsInactiveSubscribers(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	for _, id := range []string{"away", "here", "unknown"} {
		seed(t, store, "users/author/subscribers/"+id, docstore.Data{"id": id})
	}
	seed(t, store, "users/away", docstore.Data{"name": "Away", "active": false})
	seed(t, store, "users/here", docstore.Data{"name": "Here", "active": true})

	n, err := svc.Feed.FanOutPost(ctx, &models.Post{ID: "p1", User: models.UserRef{ID: "author"}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Nil(t, read(t, store, models.FeedEntryPath("away", "p1")))
	assert.NotNil(t, read(t, store, models.FeedEntryPath("here", "p1")))
	assert.NotNil(t, read(t, store, models.FeedEntryPath("unknown", "p1")))
	assert.NotNil(t, read(t, store, models.FeedEntryPath("author", "p1")))
}

func seedPosts(t *testing.T, store docstore.Store) {
	seed(t, store, "posts/p1", docstore.Data{"title": "one", "score": 0.1, "user": docstore.Data{"id": "a"}})
	seed(t, store, "posts/p2", docstore.Data{"title": "two", "score": 0.9, "user": docstore.Data{"id": "b"}})
	seed(t, store, "posts/p3", docstore.Data{"title": "three", "score": 0.5, "user": docstore.Data{"id": "a"}})
	seed(t, store, "posts/p4", docstore.Data{"title": "four", "score": 0.7, "user": docstore.Data{"id": "a"}})
}

func TestBackfillNewUser(t *testing.T) {
	svc, store := newTestServices(t)
	seedPosts(t, store)

	n, err := svc.Feed.BackfillNewUser(context.Background(), "newbie")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotNil(t, read(t, store, "users/newbie/feed/p2"))
	assert.NotNil(t, read(t, store, "users/newbie/feed/p4"))
	assert.Equal(t, 2, count(t, store, docstore.Collection("users/newbie/feed")))
}

func TestBackfillSubscription(t *testing.T) {
	svc, store := newTestServices(t)
	seedPosts(t, store)

	n, err := svc.Feed.BackfillSubscription(context.Background(), "fan", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotNil(t, read(t, store, "users/fan/feed/p4"))
	assert.NotNil(t, read(t, store, "users/fan/feed/p3"))
	assert.Nil(t, read(t, store, "users/fan/feed/p2"))
}

func TestFeedRemovals(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "users/s1/feed/p1", docstore.Data{"content_id": "p1", "user": docstore.Data{"id": "a"}})
	seed(t, store, "users/s1/feed/p2", docstore.Data{"content_id": "p2", "user": docstore.Data{"id": "b"}})
	seed(t, store, "users/s1/feed/p3", docstore.Data{"content_id": "p3", "user": docstore.Data{"id": "a"}})
	seed(t, store, "users/s2/feed/p1", docstore.Data{"content_id": "p1", "user": docstore.Data{"id": "a"}})
	seed(t, store, "users/s2/feed/p2", docstore.Data{"content_id": "p2", "user": docstore.Data{"id": "b"}})

	n, err := svc.Feed.RemoveAuthorFromFeed(ctx, "s1", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, count(t, store, docstore.Collection("users/s1/feed")))
	assert.NotNil(t, read(t, store, "users/s2/feed/p1"))

	n, err = svc.Feed.RemovePostFromFeeds(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.Feed.ClearFeed(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, count(t, store, docstore.CollectionGroup(models.Feed)))
}
