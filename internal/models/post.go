package models

import (
	"time"
)

// UserRef is the author summary embedded in posts and feed entries.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Pic  string `json:"pic,omitempty"`
}

// TopicRef is the topic summary embedded in posts.
type TopicRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type Post struct {
	ID               string          `json:"-"`
	User             UserRef         `json:"user"`
	Topic            TopicRef        `json:"topic"`
	Title            string          `json:"title"`
	Pic              string          `json:"pic"`
	Timestamp        time.Time       `json:"timestamp"`
	Readings         int             `json:"readings"`
	Bookmarks        int             `json:"bookmarks"`
	Shares           int             `json:"shares"`
	Rating           float64         `json:"rating"` // mean rating, one decimal
	Score            float64         `json:"score"`
	FavoriteFor      map[string]bool `json:"favorite_for,omitempty"`
	FavoriteForCount int             `json:"favorite_for_count"`
}

// FeedEntry is the denormalized post summary written into a subscriber feed.
func (p *Post) FeedEntry() map[string]any {
	return map[string]any{
		"content_id": p.ID,
		"title":      p.Title,
		"pic":        p.Pic,
		"timestamp":  p.Timestamp,
		"user":       map[string]any{"id": p.User.ID, "name": p.User.Name},
		"topic":      map[string]any{"id": p.Topic.ID, "title": p.Topic.Title},
		"score":      p.Score,
	}
}

// TopicCopy is the post mirror kept under topics/{topicId}/posts.
func (p *Post) TopicCopy() map[string]any {
	return map[string]any{
		"id":        p.ID,
		"title":     p.Title,
		"user":      map[string]any{"id": p.User.ID, "name": p.User.Name},
		"score":     p.Score,
		"timestamp": p.Timestamp,
	}
}

// UserCopy is the post mirror kept under users/{userId}/posts.
func (p *Post) UserCopy() map[string]any {
	return map[string]any{
		"id":        p.ID,
		"title":     p.Title,
		"topic":     map[string]any{"id": p.Topic.ID, "title": p.Topic.Title},
		"score":     p.Score,
		"timestamp": p.Timestamp,
	}
}

// PostCopy is the shape of both post mirrors as read back by the score
// aggregation.
type PostCopy struct {
	ID    string   `json:"id"`
	Topic TopicRef `json:"topic"`
	Score float64  `json:"score"`
}
