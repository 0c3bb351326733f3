package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

var ErrBadFavoriteRequest = errors.New("favorite request needs user and favorite")

// Favorites applies the one-shot add/remove favorite request documents.
type Favorites struct {
	store docstore.Store
}

func NewFavorites(store docstore.Store) *Favorites {
	return &Favorites{store: store}
}

// ApplyAdd marks req.Favorite as a favorite of req.User on both sides and
// deletes the request document.
func (f *Favorites) ApplyAdd(ctx context.Context, requestPath string, req models.FavoriteRequest) error {
	return f.apply(ctx, requestPath, req, true)
}

// ApplyRemove undoes ApplyAdd and deletes the request document.
func (f *Favorites) ApplyRemove(ctx context.Context, requestPath string, req models.FavoriteRequest) error {
	return f.apply(ctx, requestPath, req, false)
}

func (f *Favorites) apply(ctx context.Context, requestPath string, req models.FavoriteRequest, add bool) error {
	if req.User == "" || req.Favorite == "" {
		if err := f.store.Delete(ctx, requestPath); err != nil {
			slog.Error("failed to delete malformed favorite request", "path", requestPath, "err", err)
		}
		return fmt.Errorf("%w: %s", ErrBadFavoriteRequest, requestPath)
	}
	var value any = true
	op := "add favorite"
	if !add {
		value = docstore.Delete
		op = "remove favorite"
	}
	target := models.UserPath(req.Favorite)
	if req.FavoriteIsPost {
		target = models.PostPath(req.Favorite)
	}
	err := RunParallel(ctx, op,
		Step{"favorites", func(ctx context.Context) error {
			return f.updateExisting(ctx, models.UserPath(req.User), "favorites."+req.Favorite, value)
		}},
		Step{"favorite_for", func(ctx context.Context) error {
			return f.updateExisting(ctx, target, "favorite_for."+req.User, value)
		}},
		Step{"request", func(ctx context.Context) error {
			return f.store.Delete(ctx, requestPath)
		}},
	)
	if err != nil {
		return fmt.Errorf("%s %s for %s: %w", op, req.Favorite, req.User, err)
	}
	slog.Info("applied favorite request", "op", op, "user_id", req.User, "favorite", req.Favorite, "is_post", req.FavoriteIsPost)
	return nil
}

func (f *Favorites) updateExisting(ctx context.Context, path, field string, value any) error {
	err := f.store.Update(ctx, path, docstore.Data{field: value})
	if errors.Is(err, docstore.ErrNotFound) {
		slog.Warn("document not found, skipping favorite update", "path", path)
		return nil
	}
	return err
}
