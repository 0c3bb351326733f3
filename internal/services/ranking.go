package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/docstore"
	"pulse/internal/models"
	"pulse/internal/utils"
)

// RankingService computes post, topic and user scores and hands the results
// to the propagator.
type RankingService struct {
	store      docstore.Store
	propagator *Propagator
	cfg        utils.RankConfig
	now        func() time.Time
}

func NewRankingService(store docstore.Store, propagator *Propagator, cfg utils.RankConfig) *RankingService {
	return &RankingService{store: store, propagator: propagator, cfg: cfg, now: time.Now}
}

// CalculateAverageRating sets posts/{postId}.rating to the mean of its
// ratings rounded to one decimal, 0 without ratings. Missing posts are left
// alone.
func (s *RankingService) CalculateAverageRating(ctx context.Context, postID string) (float64, error) {
	var (
		rating float64
		exists bool
	)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		post, err := tx.Get(ctx, models.PostPath(postID))
		if err != nil {
			return err
		}
		docs, err := tx.Documents(ctx, docstore.Collection(models.RatingsPath(postID)))
		if err != nil {
			return err
		}
		if exists = post.Exists(); !exists {
			return nil
		}
		values := make([]float64, 0, len(docs))
		for _, d := range docs {
			if v, ok := docstore.Number(d.Data["value"]); ok {
				values = append(values, v)
			}
		}
		rating = utils.Round(utils.Mean(values), 1)
		tx.Set(models.PostPath(postID), docstore.Data{"rating": rating}, true)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("calculate average rating of post %s: %w", postID, err)
	}
	if !exists {
		slog.Warn("post not found, skipping rating", "post_id", postID)
		return 0, nil
	}
	slog.Info("calculated average rating", "post_id", postID, "rating", rating)
	return rating, nil
}

// RecomputePostScore recomputes and stores the score of a post, then
// propagates it. A missing post is not an error and yields false.
func (s *RankingService) RecomputePostScore(ctx context.Context, postID string) (float64, bool, error) {
	var (
		score  float64
		exists bool
	)
	ref := models.PostPath(postID)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		exists = snap.Exists()
		if !exists {
			return nil
		}
		var post models.Post
		if err := snap.DataTo(&post); err != nil {
			return err
		}
		score = utils.CalculateScore(s.cfg, utils.Signals{
			Created:   post.Timestamp,
			Readings:  post.Readings,
			Bookmarks: post.Bookmarks,
			Shares:    post.Shares,
			Rating:    post.Rating,
		}, s.now())
		tx.Set(ref, docstore.Data{"score": score}, true)
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("calculate score of post %s: %w", postID, err)
	}
	if !exists {
		slog.Warn("post not found, skipping score", "post_id", postID)
		return 0, false, nil
	}
	slog.Info("calculated post score", "post_id", postID, "score", score)
	s.propagate(ctx, EntityPost, postID, docstore.Data{"score": score})
	return score, true, nil
}

// RecomputeTopicScore averages the scores of topics/{topicId}/posts into the
// topic and propagates {score, posts, users}.
func (s *RankingService) RecomputeTopicScore(ctx context.Context, topicID string) (float64, error) {
	var (
		avg    float64
		topic  models.Topic
		exists bool
	)
	ref := models.TopicPath(topicID)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		copies, err := tx.Documents(ctx, docstore.Collection(ref+"/"+models.Posts))
		if err != nil {
			return err
		}
		exists = snap.Exists()
		if !exists {
			return nil
		}
		if err := snap.DataTo(&topic); err != nil {
			return err
		}
		avg = utils.Mean(scores(copies))
		tx.Set(ref, docstore.Data{"score": avg}, true)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("calculate average score of topic %s: %w", topicID, err)
	}
	if !exists {
		slog.Warn("topic not found, skipping score", "topic_id", topicID)
		return 0, nil
	}
	slog.Info("calculated topic average score", "topic_id", topicID, "score", avg)
	s.propagate(ctx, EntityTopic, topicID, docstore.Data{
		"score": avg,
		"posts": topic.Posts,
		"users": topic.Users,
	})
	return avg, nil
}

// RecomputeUserScore averages the scores of users/{userId}/posts into the
// user, derives top_topic and propagates {subscribers, top_topic, score}.
func (s *RankingService) RecomputeUserScore(ctx context.Context, userID string) (float64, error) {
	var (
		avg      float64
		topTopic string
		user     models.User
		exists   bool
	)
	ref := models.UserPath(userID)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		copies, err := tx.Documents(ctx, docstore.Collection(models.UserSub(userID, models.Posts)))
		if err != nil {
			return err
		}
		exists = snap.Exists()
		if !exists {
			return nil
		}
		if err := snap.DataTo(&user); err != nil {
			return err
		}
		avg = utils.Mean(scores(copies))
		topics := make([]string, 0, len(copies))
		for _, c := range copies {
			var pc models.PostCopy
			if err := c.DataTo(&pc); err == nil {
				topics = append(topics, pc.Topic.ID)
			}
		}
		topTopic = utils.MostFrequent(topics)
		tx.Set(ref, docstore.Data{"score": avg, "top_topic": topTopic}, true)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("calculate average score of user %s: %w", userID, err)
	}
	if !exists {
		slog.Warn("user not found, skipping score", "user_id", userID)
		return 0, nil
	}
	slog.Info("calculated user average score", "user_id", userID, "score", avg, "top_topic", topTopic)
	s.propagate(ctx, EntityUser, userID, docstore.Data{
		"subscribers": user.Subscribers,
		"top_topic":   topTopic,
		"score":       avg,
	})
	return avg, nil
}

// propagate copies data onto the entity's denormalized copies. The score is
// already saved, so failed targets are only reported; the next rescan
// retries them.
func (s *RankingService) propagate(ctx context.Context, entity Entity, id string, data docstore.Data) {
	if failed := Failed(s.propagator.Propagate(ctx, entity, id, data)); len(failed) > 0 {
		slog.Warn("score saved with stale copies", "entity", entity, "id", id, "collections", failed)
	}
}

func scores(docs []*docstore.Snapshot) []float64 {
	out := make([]float64, 0, len(docs))
	for _, d := range docs {
		if v, ok := docstore.Number(d.Data["score"]); ok {
			out = append(out, v)
		}
	}
	return out
}

// BatchResult summarizes a full rescan.
type BatchResult struct {
	Job       string
	Processed int
	Failed    int
}

func (r BatchResult) HadErrors() bool { return r.Failed > 0 }

// Message is the plain-text summary returned by the admin endpoints.
func (r BatchResult) Message() string {
	if r.HadErrors() {
		return fmt.Sprintf("%s finished with errors: %d of %d failed", r.Job, r.Failed, r.Processed)
	}
	return fmt.Sprintf("%s succeeded: %d processed", r.Job, r.Processed)
}

// RecomputeEachPostScore rescans every post. It never stops early.
func (s *RankingService) RecomputeEachPostScore(ctx context.Context) BatchResult {
	return s.each(ctx, "recompute-each-post-score", models.Posts, func(ctx context.Context, id string) error {
		_, _, err := s.RecomputePostScore(ctx, id)
		return err
	})
}

func (s *RankingService) RecomputeEachTopicScore(ctx context.Context) BatchResult {
	return s.each(ctx, "recompute-each-topic-score", models.Topics, func(ctx context.Context, id string) error {
		_, err := s.RecomputeTopicScore(ctx, id)
		return err
	})
}

func (s *RankingService) RecomputeEachUserScore(ctx context.Context) BatchResult {
	return s.each(ctx, "recompute-each-user-score", models.Users, func(ctx context.Context, id string) error {
		_, err := s.RecomputeUserScore(ctx, id)
		return err
	})
}

func (s *RankingService) each(ctx context.Context, job, collection string, fn func(context.Context, string) error) BatchResult {
	res := BatchResult{Job: job}
	docs, err := s.store.Documents(ctx, docstore.Collection(collection))
	if err != nil {
		slog.Error("failed to list documents", "job", job, "collection", collection, "err", err)
		res.Failed++
		return res
	}
	for _, d := range docs {
		res.Processed++
		if err := fn(ctx, d.ID); err != nil {
			res.Failed++
			slog.Error("rescan step failed", "job", job, "id", d.ID, "err", err)
		}
	}
	slog.Info("rescan finished", "job", job, "processed", res.Processed, "failed", res.Failed)
	return res
}

// StartScheduledMaintenance runs a full rescan of post, topic and user
// scores, followed by the inactivity sweep, every day at hour (local time).
// A negative hour disables it. It stops when ctx is done.
func (s *RankingService) StartScheduledMaintenance(ctx context.Context, hour int, sweeper *InactivityService) {
	if hour < 0 {
		return
	}
	go func() {
		for {
			now := s.now()
			next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			slog.Info("starting scheduled maintenance")
			s.RecomputeEachPostScore(ctx)
			s.RecomputeEachTopicScore(ctx)
			s.RecomputeEachUserScore(ctx)
			if sweeper != nil {
				if _, err := sweeper.Sweep(ctx); err != nil {
					slog.Error("scheduled inactivity sweep failed", "err", err)
				}
			}
			slog.Info("scheduled maintenance finished")
		}
	}()
}
