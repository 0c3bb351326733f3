package models

import (
	"time"
)

// Engagement is a bookmark, reading or share kept under
// users/{userId}/{bookmarks|readings|shares}/{postId}.
type Engagement struct {
	ID        string    `json:"id"` // post id
	User      string    `json:"user"`
	Title     string    `json:"title"`
	Pic       string    `json:"pic"`
	Topic     TopicRef  `json:"topic"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Rating is stored at posts/{postId}/ratings/{userId}.
type Rating struct {
	User      string    `json:"user"`
	Post      string    `json:"post"`
	Value     float64   `json:"value"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}
