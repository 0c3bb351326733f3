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

// InactivityService flips users to inactive once their session heartbeat is
// older than a threshold and drops their materialized feed.
type InactivityService struct {
	store docstore.Store
	feed  *FeedBuilder
	after time.Duration
	now   func() time.Time
}

func NewInactivityService(store docstore.Store, feed *FeedBuilder, after time.Duration) *InactivityService {
	return &InactivityService{store: store, feed: feed, after: after, now: time.Now}
}

type SweepResult struct {
	Scanned     int
	Inactive    int
	FeedEntries int
	Failed      int
}

func (r SweepResult) Message() string {
	if r.Failed > 0 {
		return fmt.Sprintf("sweep-inactive-users finished with errors: %d of %d inactive users failed", r.Failed, r.Inactive)
	}
	return fmt.Sprintf("sweep-inactive-users succeeded: %d sessions scanned, %d inactive users, %d feed entries removed",
		r.Scanned, r.Inactive, r.FeedEntries)
}

// Sweep scans every session. Users last seen before now minus the
// threshold are marked inactive and their feed is cleared. Per-user
// failures are counted and do not stop the scan.
func (s *InactivityService) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	sessions, err := s.store.Documents(ctx, docstore.Collection(models.Sessions))
	if err != nil {
		return res, fmt.Errorf("list sessions: %w", err)
	}
	cutoff := s.now().Add(-s.after)
	for _, doc := range sessions {
		res.Scanned++
		seen, ok := docstore.Time(doc.Data["last_seen"])
		if !ok || !seen.Before(cutoff) {
			continue
		}
		res.Inactive++
		n, err := s.deactivate(ctx, doc.ID)
		res.FeedEntries += n
		if err != nil {
			res.Failed++
			slog.Error("failed to deactivate user", "user_id", doc.ID, "err", err)
		}
	}
	slog.Info("inactivity sweep finished", "scanned", res.Scanned, "inactive", res.Inactive,
		"feed_entries", res.FeedEntries, "failed", res.Failed)
	return res, nil
}

func (s *InactivityService) deactivate(ctx context.Context, userID string) (int, error) {
	err := s.store.Update(ctx, models.UserPath(userID), docstore.Data{"active": false})
	if errors.Is(err, docstore.ErrNotFound) {
		slog.Warn("session without user", "user_id", userID)
	} else if err != nil {
		return 0, fmt.Errorf("mark user %s inactive: %w", userID, err)
	}
	n, err := s.feed.ClearFeed(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("clear feed of %s: %w", userID, err)
	}
	return n, nil
}

// MarkActive records a fresh heartbeat. A user coming back from inactivity
// gets the feed backfilled that the sweep removed.
func (s *InactivityService) MarkActive(ctx context.Context, userID string) error {
	var wasInactive, exists bool
	ref := models.UserPath(userID)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if exists = snap.Exists(); !exists {
			return nil
		}
		active, _ := snap.Data["active"].(bool)
		wasInactive = !active
		if wasInactive {
			tx.Update(ref, docstore.Data{"active": true})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark user %s active: %w", userID, err)
	}
	if !exists {
		slog.Warn("heartbeat for unknown user", "user_id", userID)
		return nil
	}
	if !wasInactive {
		return nil
	}
	slog.Info("user is active again", "user_id", userID)
	if _, err := s.feed.BackfillNewUser(ctx, userID); err != nil {
		return err
	}
	return nil
}
