package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

// notificationNamespace seeds the name based ids of event driven
// notifications, so a redelivered event rewrites the same document.
var notificationNamespace = uuid.MustParse("8f0c1a52-4c6e-4d8f-9a51-3f3b2f6c9d17")

// Notifier writes in-app notifications and sends push messages.
type Notifier struct {
	store     docstore.Store
	sender    Sender
	batchSize int
	policy    *bluemonday.Policy
	now       func() time.Time
}

func NewNotifier(store docstore.Store, sender Sender, batchSize int) *Notifier {
	if sender == nil {
		sender = LogSender{}
	}
	return &Notifier{
		store:     store,
		sender:    sender,
		batchSize: batchSize,
		policy:    bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// PostNotificationID is the id of the "new post" notification of a post.
func PostNotificationID(postID string) string {
	return "post-" + postID
}

// EventNotificationID derives a stable notification id from an event id.
func EventNotificationID(eventID string) string {
	return uuid.NewSHA1(notificationNamespace, []byte(eventID)).String()
}

// clean strips markup from user text. The result is plain text, so the
// entities the policy escapes are decoded again.
func (n *Notifier) clean(s string) string {
	return html.UnescapeString(n.policy.Sanitize(s))
}

// FavoriteHasNewPost tells every user who favorited the author about a new
// post. It reports whether a notification was written.
func (n *Notifier) FavoriteHasNewPost(ctx context.Context, post *models.Post) (bool, error) {
	snap, err := n.store.Get(ctx, models.UserPath(post.User.ID))
	if err != nil {
		return false, fmt.Errorf("read author %s: %w", post.User.ID, err)
	}
	if !snap.Exists() {
		slog.Warn("author not found, skipping new post notification", "post_id", post.ID, "user_id", post.User.ID)
		return false, nil
	}
	var author models.User
	if err := snap.DataTo(&author); err != nil {
		return false, err
	}
	followers := author.Followers()
	if len(followers) == 0 {
		slog.Debug("author is nobody's favorite", "user_id", post.User.ID)
		return false, nil
	}
	note := models.Notification{
		Message:   n.clean(fmt.Sprintf("%s has a new post.\n%s.", post.User.Name, post.Title)),
		Pic:       post.Pic,
		Date:      n.now().UTC(),
		ContentID: post.ID,
		Post:      true,
		Users:     setOf(followers),
	}
	if err := n.store.Set(ctx, models.NotificationPath(PostNotificationID(post.ID)), note.Data(), false); err != nil {
		return false, fmt.Errorf("write new post notification %s: %w", post.ID, err)
	}
	slog.Info("added new post notification", "post_id", post.ID, "users", len(followers))
	return true, nil
}

// ProfileChangeMessage describes which profile fields changed. ok is false
// when neither bio nor address changed.
func ProfileChangeMessage(before, after *models.User) (msg string, ok bool) {
	bio := before.Bio != after.Bio
	addr := before.Address != after.Address
	switch {
	case bio && addr:
		return fmt.Sprintf("%s updated their profile", before.Name), true
	case addr:
		return fmt.Sprintf("%s updated their address.\nChanged from %s to %s", before.Name, before.Address, after.Address), true
	case bio:
		return fmt.Sprintf("%s updated their bio.\n%q", before.Name, after.Bio), true
	}
	return "", false
}

// FavoriteUpdatedProfile notifies the users who favorited userID that its
// bio or address changed.
func (n *Notifier) FavoriteUpdatedProfile(ctx context.Context, eventID, userID string, before, after *models.User) (bool, error) {
	msg, ok := ProfileChangeMessage(before, after)
	if !ok {
		return false, nil
	}
	followers := after.Followers()
	if len(followers) == 0 {
		return false, nil
	}
	note := models.Notification{
		Message:   n.clean(msg),
		Pic:       after.Pic,
		Date:      n.now().UTC(),
		ContentID: userID,
		User:      true,
		Users:     setOf(followers),
	}
	if err := n.store.Set(ctx, models.NotificationPath(EventNotificationID(eventID)), note.Data(), false); err != nil {
		return false, fmt.Errorf("write profile notification for %s: %w", userID, err)
	}
	slog.Info("added profile update notification", "user_id", userID, "users", len(followers))
	return true, nil
}

// WipeFor deletes every notification about contentID, a post or a user.
func (n *Notifier) WipeFor(ctx context.Context, contentID string) (int, error) {
	q := docstore.Collection(models.Notifications).Where("content_id", docstore.Eq, contentID)
	count, err := DeleteMatching(ctx, n.store, q, n.batchSize)
	if err != nil {
		return count, fmt.Errorf("wipe notifications of %s: %w", contentID, err)
	}
	slog.Info("wiped notifications", "content_id", contentID, "count", count)
	return count, nil
}

// NotifySubscribedUser pushes "<name> subscribed to you!" to userID's device.
// Users without a registration token are skipped.
func (n *Notifier) NotifySubscribedUser(ctx context.Context, userID, subscriberID, subscriberName string) error {
	snap, err := n.store.Get(ctx, models.UserPath(userID))
	if err != nil {
		return fmt.Errorf("read user %s: %w", userID, err)
	}
	if !snap.Exists() {
		return nil
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return err
	}
	token := user.DeviceToken()
	if token == "" {
		slog.Warn("user has no registration token, skipping push", "user_id", userID)
		return nil
	}
	name := n.clean(subscriberName)
	err = n.sender.SendToDevice(ctx, token, Message{
		Title:       name,
		Body:        name + " subscribed to you!",
		ClickAction: "MainActivity",
		Data:        map[string]string{"USER_ID": subscriberID},
	})
	if err != nil {
		return fmt.Errorf("notify subscribed user %s: %w", userID, err)
	}
	slog.Info("notified subscribed user", "user_id", userID, "subscriber_id", subscriberID)
	return nil
}

func setOf(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
