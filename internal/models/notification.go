package models

import (
	"sort"
	"time"
)

// Notification fans one message out to every user listed in Users.
type Notification struct {
	Message   string          `json:"message"`
	Pic       string          `json:"pic,omitempty"`
	Date      time.Time       `json:"date"`
	ContentID string          `json:"content_id"`
	Post      bool            `json:"post,omitempty"`
	User      bool            `json:"user,omitempty"`
	Users     map[string]bool `json:"users"`
}

func (n *Notification) Data() map[string]any {
	users := make(map[string]any, len(n.Users))
	for id, ok := range n.Users {
		users[id] = ok
	}
	data := map[string]any{
		"message":    n.Message,
		"date":       n.Date,
		"content_id": n.ContentID,
		"users":      users,
	}
	if n.Pic != "" {
		data["pic"] = n.Pic
	}
	if n.Post {
		data["post"] = true
	}
	if n.User {
		data["user"] = true
	}
	return data
}

// FavoriteRequest is a one-shot command document asking to add or remove a
// favorite; it is deleted once applied.
type FavoriteRequest struct {
	User           string `json:"user"`
	Favorite       string `json:"favorite"`
	FavoriteIsPost bool   `json:"favorite_is_post"`
}

func trueKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
