package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

// Lifecycle seeds new users, topics and posts with zeroed aggregates and
// cleans up after deletions. Cleanup is best effort.
type Lifecycle struct {
	store     docstore.Store
	feed      *FeedBuilder
	notifier  *Notifier
	counters  *Counters
	batchSize int
	now       func() time.Time
}

func NewLifecycle(store docstore.Store, feed *FeedBuilder, notifier *Notifier, counters *Counters, batchSize int) *Lifecycle {
	return &Lifecycle{
		store:     store,
		feed:      feed,
		notifier:  notifier,
		counters:  counters,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// absent returns the entries of defaults that doc does not have yet.
func absent(doc, defaults docstore.Data) docstore.Data {
	out := docstore.Data{}
	for k, v := range defaults {
		if _, ok := doc[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// InitializeUser writes the account profile into users/{uid} and zeroes the
// aggregates the document does not carry yet.
func (l *Lifecycle) InitializeUser(ctx context.Context, acct models.Account) error {
	if acct.UID == "" {
		return fmt.Errorf("initialize user: empty uid")
	}
	ref := models.UserPath(acct.UID)
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		data := absent(snap.Data, docstore.Data{
			"bio":                "",
			"address":            "",
			"since":              l.now().UTC(),
			"subscribers":        0,
			"subscriptions":      0,
			"posts":              0,
			"bookmarks":          0,
			"top_topic":          "",
			"score":              0.0,
			"favorite_for_count": 0,
			"active":             true,
		})
		data["name"] = acct.DisplayName
		data["email"] = acct.Email
		data["pic"] = acct.PhotoURL
		tx.Set(ref, data, true)
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize user %s: %w", acct.UID, err)
	}
	slog.Info("initialized user", "user_id", acct.UID)
	return nil
}

// InitializeTopic zeroes the aggregates of a new topic. Missing topics are
// skipped.
func (l *Lifecycle) InitializeTopic(ctx context.Context, topicID string) error {
	ref := models.TopicPath(topicID)
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return nil
		}
		data := absent(snap.Data, docstore.Data{"posts": 0, "users": 0, "readings": 0, "score": 0.0})
		if len(data) > 0 {
			tx.Set(ref, data, true)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize topic %s: %w", topicID, err)
	}
	slog.Info("initialized topic", "topic_id", topicID)
	return nil
}

// InitializePost zeroes the counters and score of a new post and returns it
// as stored. A missing post yields nil.
func (l *Lifecycle) InitializePost(ctx context.Context, postID string) (*models.Post, error) {
	ref := models.PostPath(postID)
	var post *models.Post
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		post = nil
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return nil
		}
		data := absent(snap.Data, docstore.Data{
			"readings":           0,
			"bookmarks":          0,
			"shares":             0,
			"rating":             0.0,
			"score":              0.0,
			"favorite_for_count": 0,
			"timestamp":          l.now().UTC(),
		})
		if len(data) > 0 {
			tx.Set(ref, data, true)
		}
		merged := docstore.Merge(docstore.Clone(snap.Data), data)
		post, err = PostFromSnapshot(&docstore.Snapshot{Path: ref, ID: postID, Data: merged})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("initialize post %s: %w", postID, err)
	}
	if post == nil {
		slog.Warn("post not found, skipping initialization", "post_id", postID)
		return nil, nil
	}
	slog.Info("initialized post", "post_id", postID)
	return post, nil
}

// MirrorPost writes the topic and author copies of a post and records the
// topic on its author.
func (l *Lifecycle) MirrorPost(ctx context.Context, post *models.Post) error {
	b := l.store.Batch()
	if post.Topic.ID != "" {
		b.Set(models.TopicPostPath(post.Topic.ID, post.ID), post.TopicCopy(), true)
	}
	if post.User.ID != "" {
		b.Set(models.UserPostPath(post.User.ID, post.ID), post.UserCopy(), true)
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("mirror post %s: %w", post.ID, err)
	}
	if post.User.ID == "" || post.Topic.ID == "" {
		return nil
	}
	err := l.store.Update(ctx, models.UserPath(post.User.ID), docstore.Data{"topics." + post.Topic.ID: true})
	if errors.Is(err, docstore.ErrNotFound) {
		slog.Warn("author not found, skipping topic", "post_id", post.ID, "user_id", post.User.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("add topic %s to user %s: %w", post.Topic.ID, post.User.ID, err)
	}
	return nil
}

// CleanupPost removes what a deleted post leaves behind: its mirrors, feed
// entries, notifications and ratings. It then recounts the author's and
// topic's posts.
func (l *Lifecycle) CleanupPost(ctx context.Context, post *models.Post) error {
	err := RunParallel(ctx, "cleanup post",
		Step{"mirrors", func(ctx context.Context) error {
			b := l.store.Batch()
			if post.Topic.ID != "" {
				b.Delete(models.TopicPostPath(post.Topic.ID, post.ID))
			}
			if post.User.ID != "" {
				b.Delete(models.UserPostPath(post.User.ID, post.ID))
			}
			return b.Commit(ctx)
		}},
		Step{"feed", func(ctx context.Context) error {
			_, err := l.feed.RemovePostFromFeeds(ctx, post.ID)
			return err
		}},
		Step{"notifications", func(ctx context.Context) error {
			_, err := l.notifier.WipeFor(ctx, post.ID)
			return err
		}},
		Step{"ratings", func(ctx context.Context) error {
			_, err := DeleteMatching(ctx, l.store, docstore.Collection(models.RatingsPath(post.ID)), l.batchSize)
			return err
		}},
	)
	var steps []Step
	if post.User.ID != "" {
		steps = append(steps, Step{"user posts", func(ctx context.Context) error { return l.counters.UserPosts(ctx, post.User.ID) }})
	}
	if post.Topic.ID != "" {
		steps = append(steps, Step{"topic posts", func(ctx context.Context) error { return l.counters.TopicPosts(ctx, post.Topic.ID) }})
	}
	if cerr := RunParallel(ctx, "recount after post delete", steps...); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return fmt.Errorf("cleanup post %s: %w", post.ID, err)
	}
	slog.Info("cleaned up deleted post", "post_id", post.ID)
	return nil
}

// DeleteAccount removes users/{uid}; the user delete handler wipes the rest.
func (l *Lifecycle) DeleteAccount(ctx context.Context, uid string) error {
	if err := l.store.Delete(ctx, models.UserPath(uid)); err != nil {
		return fmt.Errorf("delete account %s: %w", uid, err)
	}
	slog.Info("deleted user document of removed account", "user_id", uid)
	return nil
}

// userCollections are the sub-collections wiped with their user.
var userCollections = []string{
	models.Feed,
	models.Posts,
	models.Topics,
	models.Bookmarks,
	models.Readings,
	models.Shares,
	models.Subscribers,
	models.Subscriptions,
}

// WipeUserContent deletes everything a deleted user owns: the posts whose
// user.id is uid and nothing else, the notifications about the user, the
// session, its sub-collections and its copies in other users' subscribers
// and subscriptions.
func (l *Lifecycle) WipeUserContent(ctx context.Context, uid string) error {
	steps := []Step{
		{"posts", func(ctx context.Context) error {
			n, err := DeleteMatching(ctx, l.store, docstore.Collection(models.Posts).Where("user.id", docstore.Eq, uid), l.batchSize)
			slog.Info("wiped posts of deleted user", "user_id", uid, "count", n)
			return err
		}},
		{"notifications", func(ctx context.Context) error {
			_, err := l.notifier.WipeFor(ctx, uid)
			return err
		}},
		{"session", func(ctx context.Context) error {
			return l.store.Delete(ctx, models.SessionPath(uid))
		}},
		{"subscriber copies", func(ctx context.Context) error {
			_, err := DeleteMatching(ctx, l.store, docstore.CollectionGroup(models.Subscribers).Where("id", docstore.Eq, uid), l.batchSize)
			return err
		}},
		{"subscription copies", func(ctx context.Context) error {
			_, err := DeleteMatching(ctx, l.store, docstore.CollectionGroup(models.Subscriptions).Where("id", docstore.Eq, uid), l.batchSize)
			return err
		}},
	}
	for _, c := range userCollections {
		steps = append(steps, Step{c, func(ctx context.Context) error {
			_, err := DeleteMatching(ctx, l.store, docstore.Collection(models.UserSub(uid, c)), l.batchSize)
			return err
		}})
	}
	if err := RunParallel(ctx, "wipe user content", steps...); err != nil {
		return fmt.Errorf("wipe content of user %s: %w", uid, err)
	}
	slog.Info("wiped content of deleted user", "user_id", uid)
	return nil
}
