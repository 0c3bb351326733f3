package services

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

// FeedBuilder materializes posts into the feeds of their readers. Entries
// live at users/{reader}/feed/{postId} and are written with merge, so
// replaying a trigger rewrites the same documents.
type FeedBuilder struct {
	store     docstore.Store
	batchSize int
	backfill  int
}

func NewFeedBuilder(store docstore.Store, batchSize, backfill int) *FeedBuilder {
	return &FeedBuilder{store: store, batchSize: batchSize, backfill: backfill}
}

// PostFromSnapshot decodes a posts/{id} snapshot.
func PostFromSnapshot(snap *docstore.Snapshot) (*models.Post, error) {
	var p models.Post
	if err := snap.DataTo(&p); err != nil {
		return nil, err
	}
	p.ID = snap.ID
	return &p, nil
}

// FanOutPost writes the post into the feed of its author and of every
// subscriber of the author. Subscribers marked inactive are skipped since the
// sweep cleared their feeds; they get a backfill when they come back. It
// returns the number of entries written.
func (f *FeedBuilder) FanOutPost(ctx context.Context, post *models.Post) (int, error) {
	subs, err := f.store.Documents(ctx, docstore.Collection(models.UserSub(post.User.ID, models.Subscribers)))
	if err != nil {
		return 0, fmt.Errorf("list subscribers of %s: %w", post.User.ID, err)
	}
	entry := post.FeedEntry()
	writes := make([]docstore.Write, 0, len(subs)+1)
	writes = append(writes, docstore.SetWrite(models.FeedEntryPath(post.User.ID, post.ID), entry, true))
	for _, s := range subs {
		if s.ID == post.User.ID {
			continue
		}
		inactive, err := f.inactive(ctx, s.ID)
		if err != nil {
			return 0, err
		}
		if inactive {
			slog.Debug("skipping feed of inactive subscriber", "post_id", post.ID, "user_id", s.ID)
			continue
		}
		writes = append(writes, docstore.SetWrite(models.FeedEntryPath(s.ID, post.ID), entry, true))
	}
	n, err := docstore.CommitChunked(ctx, f.store, writes, f.batchSize)
	if err != nil {
		return n, fmt.Errorf("fan out post %s: %w", post.ID, err)
	}
	slog.Info("fanned out post to feeds", "post_id", post.ID, "author_id", post.User.ID, "entries", n)
	return n, nil
}

// inactive reports whether users/{id} carries active: false. A missing
// document or field counts as active.
func (f *FeedBuilder) inactive(ctx context.Context, userID string) (bool, error) {
	snap, err := f.store.Get(ctx, models.UserPath(userID))
	if err != nil {
		return false, fmt.Errorf("read subscriber %s: %w", userID, err)
	}
	if !snap.Exists() {
		return false, nil
	}
	active, ok := snap.Data["active"].(bool)
	return ok && !active, nil
}

// BackfillNewUser seeds an empty feed with the best scoring posts.
func (f *FeedBuilder) BackfillNewUser(ctx context.Context, userID string) (int, error) {
	q := docstore.Collection(models.Posts).OrderBy("score", docstore.Desc).Limit(f.backfill)
	n, err := f.backfillFrom(ctx, userID, q)
	if err != nil {
		return n, fmt.Errorf("backfill feed of %s: %w", userID, err)
	}
	slog.Info("backfilled new user feed", "user_id", userID, "entries", n)
	return n, nil
}

// BackfillSubscription copies the best scoring posts of authorID into the
// feed of a new subscriber.
func (f *FeedBuilder) BackfillSubscription(ctx context.Context, subscriberID, authorID string) (int, error) {
	q := docstore.Collection(models.Posts).
		Where("user.id", docstore.Eq, authorID).
		OrderBy("score", docstore.Desc).
		Limit(f.backfill)
	n, err := f.backfillFrom(ctx, subscriberID, q)
	if err != nil {
		return n, fmt.Errorf("backfill feed of %s with posts of %s: %w", subscriberID, authorID, err)
	}
	slog.Info("backfilled subscriber feed", "subscriber_id", subscriberID, "author_id", authorID, "entries", n)
	return n, nil
}

func (f *FeedBuilder) backfillFrom(ctx context.Context, userID string, q docstore.Query) (int, error) {
	if f.backfill <= 0 {
		return 0, nil
	}
	docs, err := f.store.Documents(ctx, q)
	if err != nil {
		return 0, err
	}
	writes := make([]docstore.Write, 0, len(docs))
	for _, d := range docs {
		post, err := PostFromSnapshot(d)
		if err != nil {
			slog.Warn("skipping undecodable post", "post_id", d.ID, "err", err)
			continue
		}
		writes = append(writes, docstore.SetWrite(models.FeedEntryPath(userID, post.ID), post.FeedEntry(), true))
	}
	return docstore.CommitChunked(ctx, f.store, writes, f.batchSize)
}

// RemoveAuthorFromFeed drops every entry of authorID from the feed of
// subscriberID.
func (f *FeedBuilder) RemoveAuthorFromFeed(ctx context.Context, subscriberID, authorID string) (int, error) {
	q := docstore.Collection(models.UserSub(subscriberID, models.Feed)).Where("user.id", docstore.Eq, authorID)
	return f.deleteAll(ctx, q)
}

// RemovePostFromFeeds deletes the entries of a post from every feed.
func (f *FeedBuilder) RemovePostFromFeeds(ctx context.Context, postID string) (int, error) {
	return f.deleteAll(ctx, docstore.CollectionGroup(models.Feed).Where("content_id", docstore.Eq, postID))
}

// ClearFeed deletes the whole feed of a user.
func (f *FeedBuilder) ClearFeed(ctx context.Context, userID string) (int, error) {
	return f.deleteAll(ctx, docstore.Collection(models.UserSub(userID, models.Feed)))
}

func (f *FeedBuilder) deleteAll(ctx context.Context, q docstore.Query) (int, error) {
	return DeleteMatching(ctx, f.store, q, f.batchSize)
}

// DeleteMatching deletes every document q selects in chunked batches.
func DeleteMatching(ctx context.Context, store docstore.Store, q docstore.Query, batchSize int) (int, error) {
	docs, err := store.Documents(ctx, q)
	if err != nil {
		return 0, err
	}
	writes := make([]docstore.Write, len(docs))
	for i, d := range docs {
		writes[i] = docstore.DeleteWrite(d.Path)
	}
	return docstore.CommitChunked(ctx, store, writes, batchSize)
}
