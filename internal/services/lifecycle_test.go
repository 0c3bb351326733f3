package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

func TestInitializeUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)

	acct := models.Account{UID: "u1", DisplayName: "Ana", Email: "ana@example.com", PhotoURL: "https://img/ana.png"}
	require.NoError(t, svc.Lifecycle.InitializeUser(ctx, acct))
	user := read(t, store, "users/u1")
	assert.Equal(t, "Ana", user["name"])
	assert.Equal(t, "ana@example.com", user["email"])
	assert.Equal(t, "https://img/ana.png", user["pic"])
	assert.Equal(t, 0, user["subscribers"])
	assert.Equal(t, 0.0, user["score"])
	assert.Equal(t, true, user["active"])
	assert.Equal(t, testNow, user["since"])

	require.NoError(t, store.Update(ctx, "users/u1", docstore.Data{"subscribers": 4, "bio": "gopher"}))
	acct.DisplayName = "Ana B"
	require.NoError(t, svc.Lifecycle.InitializeUser(ctx, acct))
	user = read(t, store, "users/u1")
	assert.Equal(t, "Ana B", user["name"])
	assert.Equal(t, 4, user["subscribers"])
	assert.Equal(t, "gopher", user["bio"])

	assert.Error(t, svc.Lifecycle.InitializeUser(ctx, models.Account{}))
}

func TestInitializeTopic(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "topics/t1", docstore.Data{"title": "go", "posts": 3})

	require.NoError(t, svc.Lifecycle.InitializeTopic(ctx, "t1"))
	assert.Equal(t, docstore.Data{"title": "go", "posts": 3, "users": 0, "readings": 0, "score": 0.0}, read(t, store, "topics/t1"))

	require.NoError(t, svc.Lifecycle.InitializeTopic(ctx, "missing"))
	assert.Nil(t, read(t, store, "topics/missing"))
}

func TestInitializeAndMirrorPost(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "users/u1", docstore.Data{"name": "Ana"})
	seed(t, store, "posts/p1", docstore.Data{
		"title":    "hello",
		"user":     docstore.Data{"id": "u1", "name": "Ana"},
		"topic":    docstore.Data{"id": "t1", "title": "go"},
		"readings": 2,
	})

	post, err := svc.Lifecycle.InitializePost(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "p1", post.ID)
	assert.Equal(t, 2, post.Readings)
	assert.True(t, testNow.Equal(post.Timestamp))

	stored := read(t, store, "posts/p1")
	assert.Equal(t, 2, stored["readings"])
	assert.Equal(t, 0, stored["bookmarks"])
	assert.Equal(t, 0.0, stored["score"])

	require.NoError(t, svc.Lifecycle.MirrorPost(ctx, post))
	assert.Equal(t, "p1", read(t, store, "topics/t1/posts/p1")["id"])
	assert.Equal(t, "p1", read(t, store, "users/u1/posts/p1")["id"])
	assert.Equal(t, map[string]any{"t1": true}, read(t, store, "users/u1")["topics"])

	missing, err := svc.Lifecycle.InitializePost(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCleanupPost(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "users/u1", docstore.Data{"posts": 1})
	seed(t, store, "topics/t1", docstore.Data{"posts": 1})
	seed(t, store, "topics/t1/posts/p1", docstore.Data{"id": "p1"})
	seed(t, store, "users/u1/posts/p1", docstore.Data{"id": "p1"})
	seed(t, store, "users/s1/feed/p1", docstore.Data{"content_id": "p1"})
	seed(t, store, "users/s1/feed/p2", docstore.Data{"content_id": "p2"})
	seed(t, store, "posts/p1/ratings/s1", docstore.Data{"post": "p1", "value": 3})
	seed(t, store, "notifications/post-p1", docstore.Data{"content_id": "p1"})
	seed(t, store, "notifications/post-p2", docstore.Data{"content_id": "p2"})

	post := &models.Post{ID: "p1", User: models.UserRef{ID: "u1"}, Topic: models.TopicRef{ID: "t1"}}
	require.NoError(t, svc.Lifecycle.CleanupPost(ctx, post))

	for _, path := range []string{"topics/t1/posts/p1", "users/u1/posts/p1", "users/s1/feed/p1", "posts/p1/ratings/s1", "notifications/post-p1"} {
		assert.Nil(t, read(t, store, path), path)
	}
	assert.NotNil(t, read(t, store, "users/s1/feed/p2"))
	assert.NotNil(t, read(t, store, "notifications/post-p2"))
	assert.Equal(t, 0, read(t, store, "users/u1")["posts"])
	assert.Equal(t, 0, read(t, store, "topics/t1")["posts"])
}

func TestWipeUserContentRemovesOnlyOwnPosts(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		seed(t, store, "posts/"+id, docstore.Data{"user": docstore.Data{"id": "gone"}})
	}
	seed(t, store, "posts/p4", docstore.Data{"user": docstore.Data{"id": "stays"}})
	seed(t, store, "posts/p5", docstore.Data{"user": docstore.Data{"id": "stays"}, "mentions": "gone"})
	seed(t, store, "users/gone/feed/p4", docstore.Data{"content_id": "p4"})
	seed(t, store, "users/gone/subscriptions/stays", docstore.Data{"id": "stays"})
	seed(t, store, "users/stays/subscribers/gone", docstore.Data{"id": "gone"})
	seed(t, store, "notifications/n1", docstore.Data{"content_id": "gone"})
	seed(t, store, "sessions/gone", docstore.Data{"last_seen": testNow})

	require.NoError(t, svc.Lifecycle.WipeUserContent(ctx, "gone"))

	docs, err := store.Documents(ctx, docstore.Collection(models.Posts))
	require.NoError(t, err)
	var left []string
	for _, d := range docs {
		left = append(left, d.ID)
	}
	assert.Equal(t, []string{"p4", "p5"}, left)
	assert.Nil(t, read(t, store, "users/gone/feed/p4"))
	assert.Nil(t, read(t, store, "users/gone/subscriptions/stays"))
	assert.Nil(t, read(t, store, "users/stays/subscribers/gone"))
	assert.Nil(t, read(t, store, "notifications/n1"))
	assert.Nil(t, read(t, store, "sessions/gone"))
}

func TestDeleteAccount(t *testing.T) {
	svc, store := newTestServices(t)
	seed(t, store, "users/u1", docstore.Data{"name": "Ana"})
	require.NoError(t, svc.Lifecycle.DeleteAccount(context.Background(), "u1"))
	assert.Nil(t, read(t, store, "users/u1"))
}
