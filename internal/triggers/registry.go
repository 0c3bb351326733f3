package triggers

import (
	"context"
	"fmt"

	"pulse/internal/models"
	"pulse/internal/services"
)

// Register wires every handler of the platform into d.
func Register(d *Dispatcher, svc *services.Services) {
	h := &handlers{svc: svc}

	d.Handle("users/{userId}/subscribers/{subscriberId}", "on-subscriber-created", h.subscriberCreated, KindCreate)
	d.Handle("users/{userId}/subscribers/{subscriberId}", "on-subscriber-deleted", h.subscriberDeleted, KindDelete)
	d.Handle("users/{userId}/subscriptions/{subscribedId}", "count-subscriptions", h.countSubscriptions, KindCreate, KindDelete)

	d.Handle("posts/{postId}/ratings/{userId}", "on-rating-written", h.ratingWritten)
	d.Handle("users/{userId}/bookmarks/{postId}", "on-bookmark-written", h.bookmarkWritten, KindCreate, KindDelete)
	d.Handle("users/{userId}/readings/{postId}", "on-reading-written", h.readingWritten, KindCreate, KindDelete)
	d.Handle("users/{userId}/shares/{postId}", "on-share-written", h.shareWritten, KindCreate, KindDelete)

	d.Handle("posts/{postId}", "on-post-created", h.postCreated, KindCreate)
	d.Handle("posts/{postId}", "on-post-updated", h.postUpdated, KindUpdate)
	d.Handle("posts/{postId}", "on-post-deleted", h.postDeleted, KindDelete)
	d.Handle("topics/{topicId}", "initialize-topic", h.topicCreated, KindCreate)
	d.Handle("topics/{topicId}/posts/{postId}", "calculate-topic-score", h.topicPostWritten)
	d.Handle("users/{userId}/posts/{postId}", "calculate-user-score", h.userPostWritten)

	d.Handle("users/{userId}", "on-user-updated", h.userUpdated, KindUpdate)
	d.Handle("users/{userId}", "on-user-deleted", h.userDeleted, KindDelete)

	d.Handle("add_to_favorite_requests/{requestId}", "add-to-favorites", h.addFavorite, KindCreate)
	d.Handle("remove_from_favorite_requests/{requestId}", "remove-from-favorites", h.removeFavorite, KindCreate)

	d.Handle("sessions/{userId}", "mark-user-active", h.sessionWritten, KindCreate, KindUpdate)

	d.HandleAccount(KindAccountCreate, "initialize-user", h.accountCreated)
	d.HandleAccount(KindAccountDelete, "delete-user", h.accountDeleted)
}

type handlers struct {
	svc *services.Services
}

func (h *handlers) subscriberCreated(ctx context.Context, e *Event) error {
	userID, subscriberID := e.Param("userId"), e.Param("subscriberId")
	var sub models.UserCopy
	if _, err := e.AfterTo(&sub); err != nil {
		return err
	}
	return services.RunParallel(ctx, "subscriber created",
		services.Step{Name: "mirror subscription", Run: func(ctx context.Context) error {
			return h.mirrorSubscription(ctx, userID, subscriberID)
		}},
		services.Step{Name: "count subscribers", Run: func(ctx context.Context) error {
			return h.svc.Counters.UserSubscribers(ctx, userID)
		}},
		services.Step{Name: "notify", Run: func(ctx context.Context) error {
			return h.svc.Notifier.NotifySubscribedUser(ctx, userID, subscriberID, sub.Name)
		}},
		services.Step{Name: "backfill feed", Run: func(ctx context.Context) error {
			_, err := h.svc.Feed.BackfillSubscription(ctx, subscriberID, userID)
			return err
		}},
	)
}

// mirrorSubscription writes users/{subscriber}/subscriptions/{user} from the
// current state of the subscribed user.
func (h *handlers) mirrorSubscription(ctx context.Context, userID, subscriberID string) error {
	snap, err := h.svc.Store.Get(ctx, models.UserPath(userID))
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return nil
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return err
	}
	user.ID = userID
	return h.svc.Store.Set(ctx, models.UserSub(subscriberID, models.Subscriptions)+"/"+userID, user.Copy().Data(), true)
}

func (h *handlers) subscriberDeleted(ctx context.Context, e *Event) error {
	userID, subscriberID := e.Param("userId"), e.Param("subscriberId")
	return services.RunParallel(ctx, "subscriber deleted",
		services.Step{Name: "drop mirror", Run: func(ctx context.Context) error {
			return h.svc.Store.Delete(ctx, models.UserSub(subscriberID, models.Subscriptions)+"/"+userID)
		}},
		services.Step{Name: "count subscribers", Run: func(ctx context.Context) error {
			return h.svc.Counters.UserSubscribers(ctx, userID)
		}},
		services.Step{Name: "clean feed", Run: func(ctx context.Context) error {
			_, err := h.svc.Feed.RemoveAuthorFromFeed(ctx, subscriberID, userID)
			return err
		}},
	)
}

func (h *handlers) countSubscriptions(ctx context.Context, e *Event) error {
	return h.svc.Counters.UserSubscriptions(ctx, e.Param("userId"))
}

// ratingWritten ignores rewrites that leave the value alone, such as the
// score copies written by propagation.
func (h *handlers) ratingWritten(ctx context.Context, e *Event) error {
	if e.Kind == KindUpdate && !e.Changed("value") {
		return nil
	}
	postID := e.Param("postId")
	if _, err := h.svc.Ranking.CalculateAverageRating(ctx, postID); err != nil {
		return err
	}
	return h.recomputePost(ctx, postID)
}

func (h *handlers) recomputePost(ctx context.Context, postID string) error {
	_, _, err := h.svc.Ranking.RecomputePostScore(ctx, postID)
	return err
}

func (h *handlers) bookmarkWritten(ctx context.Context, e *Event) error {
	postID, userID := e.Param("postId"), e.Param("userId")
	err := services.RunParallel(ctx, "bookmark written",
		services.Step{Name: "post bookmarks", Run: func(ctx context.Context) error { return h.svc.Counters.PostBookmarks(ctx, postID) }},
		services.Step{Name: "user bookmarks", Run: func(ctx context.Context) error { return h.svc.Counters.UserBookmarks(ctx, userID) }},
	)
	if err != nil {
		return err
	}
	return h.recomputePost(ctx, postID)
}

func (h *handlers) readingWritten(ctx context.Context, e *Event) error {
	postID := e.Param("postId")
	var reading models.Engagement
	if err := e.StateTo(&reading); err != nil {
		return err
	}
	steps := []services.Step{
		{Name: "post readings", Run: func(ctx context.Context) error { return h.svc.Counters.PostReadings(ctx, postID) }},
	}
	if reading.Topic.ID != "" {
		steps = append(steps, services.Step{Name: "topic readings", Run: func(ctx context.Context) error {
			return h.svc.Counters.TopicReadings(ctx, reading.Topic.ID)
		}})
	}
	if err := services.RunParallel(ctx, "reading written", steps...); err != nil {
		return err
	}
	return h.recomputePost(ctx, postID)
}

func (h *handlers) shareWritten(ctx context.Context, e *Event) error {
	postID := e.Param("postId")
	if err := h.svc.Counters.PostShares(ctx, postID); err != nil {
		return err
	}
	return h.recomputePost(ctx, postID)
}

func (h *handlers) postCreated(ctx context.Context, e *Event) error {
	postID := e.DocID()
	post, err := h.svc.Lifecycle.InitializePost(ctx, postID)
	if err != nil || post == nil {
		return err
	}
	if err := h.svc.Lifecycle.MirrorPost(ctx, post); err != nil {
		return err
	}
	err = services.RunParallel(ctx, "post created",
		services.Step{Name: "counters", Run: func(ctx context.Context) error {
			return h.svc.Counters.PostCreated(ctx, post.User.ID, post.Topic.ID)
		}},
		services.Step{Name: "feed", Run: func(ctx context.Context) error {
			_, err := h.svc.Feed.FanOutPost(ctx, post)
			return err
		}},
		services.Step{Name: "notification", Run: func(ctx context.Context) error {
			_, err := h.svc.Notifier.FavoriteHasNewPost(ctx, post)
			return err
		}},
	)
	if serr := h.recomputePost(ctx, postID); serr != nil {
		return serr
	}
	return err
}

func (h *handlers) postUpdated(ctx context.Context, e *Event) error {
	if !e.Changed("favorite_for") {
		return nil
	}
	_, err := h.svc.Counters.FavoriteForCount(ctx, models.PostPath(e.Param("postId")))
	return err
}

func (h *handlers) postDeleted(ctx context.Context, e *Event) error {
	var post models.Post
	if ok, err := e.BeforeTo(&post); !ok || err != nil {
		return err
	}
	post.ID = e.DocID()
	return h.svc.Lifecycle.CleanupPost(ctx, &post)
}

func (h *handlers) topicCreated(ctx context.Context, e *Event) error {
	return h.svc.Lifecycle.InitializeTopic(ctx, e.DocID())
}

// topicPostWritten recomputes the topic average when a post joins or leaves
// the topic or its score moves.
func (h *handlers) topicPostWritten(ctx context.Context, e *Event) error {
	if e.Kind == KindUpdate && !e.Changed("score") {
		return nil
	}
	_, err := h.svc.Ranking.RecomputeTopicScore(ctx, e.Param("topicId"))
	return err
}

func (h *handlers) userPostWritten(ctx context.Context, e *Event) error {
	if e.Kind == KindUpdate && !e.Changed("score") && !e.Changed("topic.id") {
		return nil
	}
	_, err := h.svc.Ranking.RecomputeUserScore(ctx, e.Param("userId"))
	return err
}

func (h *handlers) userUpdated(ctx context.Context, e *Event) error {
	userID := e.Param("userId")
	var steps []services.Step
	if e.Changed("favorite_for") {
		steps = append(steps, services.Step{Name: "favorite count", Run: func(ctx context.Context) error {
			_, err := h.svc.Counters.FavoriteForCount(ctx, models.UserPath(userID))
			return err
		}})
	}
	if e.Changed("bio") || e.Changed("address") {
		steps = append(steps, services.Step{Name: "profile notification", Run: func(ctx context.Context) error {
			var before, after models.User
			if _, err := e.BeforeTo(&before); err != nil {
				return err
			}
			if _, err := e.AfterTo(&after); err != nil {
				return err
			}
			_, err := h.svc.Notifier.FavoriteUpdatedProfile(ctx, e.ID, userID, &before, &after)
			return err
		}})
	}
	return services.RunParallel(ctx, "user updated", steps...)
}

func (h *handlers) userDeleted(ctx context.Context, e *Event) error {
	return h.svc.Lifecycle.WipeUserContent(ctx, e.Param("userId"))
}

func (h *handlers) addFavorite(ctx context.Context, e *Event) error {
	var req models.FavoriteRequest
	if _, err := e.AfterTo(&req); err != nil {
		return fmt.Errorf("decode favorite request: %w", err)
	}
	return h.svc.Favorites.ApplyAdd(ctx, e.Path, req)
}

func (h *handlers) removeFavorite(ctx context.Context, e *Event) error {
	var req models.FavoriteRequest
	if _, err := e.AfterTo(&req); err != nil {
		return fmt.Errorf("decode favorite request: %w", err)
	}
	return h.svc.Favorites.ApplyRemove(ctx, e.Path, req)
}

func (h *handlers) sessionWritten(ctx context.Context, e *Event) error {
	return h.svc.Inactivity.MarkActive(ctx, e.Param("userId"))
}

func (h *handlers) accountCreated(ctx context.Context, e *Event) error {
	if err := h.svc.Lifecycle.InitializeUser(ctx, *e.Account); err != nil {
		return err
	}
	_, err := h.svc.Feed.BackfillNewUser(ctx, e.Account.UID)
	return err
}

func (h *handlers) accountDeleted(ctx context.Context, e *Event) error {
	return h.svc.Lifecycle.DeleteAccount(ctx, e.Account.UID)
}
