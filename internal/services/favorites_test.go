package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

func TestFavoriteUserAddThenRemove(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "users/fan", docstore.Data{"name": "fan"})
	seed(t, store, "users/star", docstore.Data{"name": "star"})
	seed(t, store, "add_to_favorite_requests/r1", docstore.Data{"user": "fan", "favorite": "star"})

	req := models.FavoriteRequest{User: "fan", Favorite: "star"}
	require.NoError(t, svc.Favorites.ApplyAdd(ctx, "add_to_favorite_requests/r1", req))
	assert.Equal(t, map[string]any{"star": true}, read(t, store, "users/fan")["favorites"])
	assert.Equal(t, map[string]any{"fan": true}, read(t, store, "users/star")["favorite_for"])
	assert.Nil(t, read(t, store, "add_to_favorite_requests/r1"))

	seed(t, store, "remove_from_favorite_requests/r2", docstore.Data{"user": "fan", "favorite": "star"})
	require.NoError(t, svc.Favorites.ApplyRemove(ctx, "remove_from_favorite_requests/r2", req))
	assert.Empty(t, read(t, store, "users/fan")["favorites"])
	assert.Empty(t, read(t, store, "users/star")["favorite_for"])
	assert.Nil(t, read(t, store, "remove_from_favorite_requests/r2"))
}

func TestFavoritePost(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	seed(t, store, "users/fan", docstore.Data{"name": "fan"})
	seed(t, store, "posts/p1", docstore.Data{"title": "hello"})

	req := models.FavoriteRequest{User: "fan", Favorite: "p1", FavoriteIsPost: true}
	require.NoError(t, svc.Favorites.ApplyAdd(ctx, "add_to_favorite_requests/r1", req))
	assert.Equal(t, map[string]any{"fan": true}, read(t, store, "posts/p1")["favorite_for"])
	assert.Nil(t, read(t, store, "users/p1"))
}

func TestFavoriteMissingTargetIsSkipped(t *testing.T) {
	svc, store := newTestServices(t)
	seed(t, store, "users/fan", docstore.Data{"name": "fan"})

	req := models.FavoriteRequest{User: "fan", Favorite: "ghost"}
	require.NoError(t, svc.Favorites.ApplyAdd(context.Background(), "add_to_favorite_requests/r1", req))
	assert.Nil(t, read(t, store, "users/ghost"))
	assert.Equal(t, map[string]any{"ghost": true}, read(t, store, "users/fan")["favorites"])
}

func TestMalformedFavoriteRequest(t *testing.T) {
	svc, store := newTestServices(t)
	seed(t, store, "add_to_favorite_requests/r1", docstore.Data{"user": "fan"})

	err := svc.Favorites.ApplyAdd(context.Background(), "add_to_favorite_requests/r1", models.FavoriteRequest{User: "fan"})
	assert.ErrorIs(t, err, ErrBadFavoriteRequest)
	assert.Nil(t, read(t, store, "add_to_favorite_requests/r1"))
}
