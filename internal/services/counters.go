package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

// Counters keeps cardinality fields equal to the live size of the
// collections they summarize. Every count is a full re-query, never an
// increment, so concurrent recounts converge.
type Counters struct {
	store docstore.Store
}

func NewCounters(store docstore.Store) *Counters {
	return &Counters{store: store}
}

// CountInto writes count(q) into field of the owner document. The owner is
// updated, not created: a missing owner is skipped and reported as ok=false.
func (c *Counters) CountInto(ctx context.Context, q docstore.Query, ownerPath, field string) (n int, ok bool, err error) {
	n, err = c.store.Count(ctx, q)
	if err != nil {
		return 0, false, fmt.Errorf("count %s for %s: %w", field, ownerPath, err)
	}
	err = c.store.Update(ctx, ownerPath, docstore.Data{field: n})
	if errors.Is(err, docstore.ErrNotFound) {
		slog.Warn("owner document not found, skipping counter", "path", ownerPath, "field", field)
		return n, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("write %s to %s: %w", field, ownerPath, err)
	}
	slog.Debug("updated counter", "path", ownerPath, "field", field, "count", n)
	return n, true, nil
}

func (c *Counters) count(ctx context.Context, q docstore.Query, ownerPath, field string) error {
	_, _, err := c.CountInto(ctx, q, ownerPath, field)
	return err
}

// PostBookmarks sets posts/{p}.bookmarks to the number of users who
// bookmarked it.
func (c *Counters) PostBookmarks(ctx context.Context, postID string) error {
	return c.count(ctx, docstore.CollectionGroup(models.Bookmarks).Where("id", docstore.Eq, postID),
		models.PostPath(postID), "bookmarks")
}

func (c *Counters) PostReadings(ctx context.Context, postID string) error {
	return c.count(ctx, docstore.CollectionGroup(models.Readings).Where("id", docstore.Eq, postID),
		models.PostPath(postID), "readings")
}

func (c *Counters) PostShares(ctx context.Context, postID string) error {
	return c.count(ctx, docstore.CollectionGroup(models.Shares).Where("id", docstore.Eq, postID),
		models.PostPath(postID), "shares")
}

func (c *Counters) UserBookmarks(ctx context.Context, userID string) error {
	return c.count(ctx, docstore.Collection(models.UserSub(userID, models.Bookmarks)),
		models.UserPath(userID), "bookmarks")
}

func (c *Counters) UserSubscribers(ctx context.Context, userID string) error {
	return c.count(ctx, docstore.Collection(models.UserSub(userID, models.Subscribers)),
		models.UserPath(userID), "subscribers")
}

func (c *Counters) UserSubscriptions(ctx context.Context, userID string) error {
	return c.count(ctx, docstore.Collection(models.UserSub(userID, models.Subscriptions)),
		models.UserPath(userID), "subscriptions")
}

// UserPosts counts the posts authored by the user.
func (c *Counters) UserPosts(ctx context.Context, userID string) error {
	return c.count(ctx, docstore.Collection(models.Posts).Where("user.id", docstore.Eq, userID),
		models.UserPath(userID), "posts")
}

func (c *Counters) TopicPosts(ctx context.Context, topicID string) error {
	return c.count(ctx, docstore.Collection(models.Posts).Where("topic.id", docstore.Eq, topicID),
		models.TopicPath(topicID), "posts")
}

// TopicReadings counts the readings of every post in the topic.
func (c *Counters) TopicReadings(ctx context.Context, topicID string) error {
	return c.count(ctx, docstore.CollectionGroup(models.Readings).Where("topic.id", docstore.Eq, topicID),
		models.TopicPath(topicID), "readings")
}

// TopicUsers counts the users who posted in the topic at least once.
func (c *Counters) TopicUsers(ctx context.Context, topicID string) error {
	return c.count(ctx, docstore.Collection(models.Users).Where("topics."+topicID, docstore.Eq, true),
		models.TopicPath(topicID), "users")
}

// FavoriteForCount sets favorite_for_count of a user or post document to the
// number of true entries in its favorite_for map. Unchanged counts are not
// written.
func (c *Counters) FavoriteForCount(ctx context.Context, path string) (int, error) {
	var n int
	err := c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return nil
		}
		n = 0
		favs, _ := snap.Data["favorite_for"].(map[string]any)
		for _, v := range favs {
			if b, ok := v.(bool); ok && b {
				n++
			}
		}
		if cur, ok := docstore.Number(snap.Data["favorite_for_count"]); ok && int(cur) == n {
			return nil
		}
		tx.Update(path, docstore.Data{"favorite_for_count": n})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count favorites of %s: %w", path, err)
	}
	return n, nil
}

// PostCreated recounts the author's posts and the topic's posts and users
// in parallel.
func (c *Counters) PostCreated(ctx context.Context, userID, topicID string) error {
	return RunParallel(ctx, "post counters",
		Step{"user posts", func(ctx context.Context) error { return c.UserPosts(ctx, userID) }},
		Step{"topic posts", func(ctx context.Context) error { return c.TopicPosts(ctx, topicID) }},
		Step{"topic users", func(ctx context.Context) error { return c.TopicUsers(ctx, topicID) }},
	)
}
