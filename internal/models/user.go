package models

import (
	"time"
)

type User struct {
	ID                string          `json:"-"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
	Pic               string          `json:"pic"`
	Bio               string          `json:"bio"`
	Address           string          `json:"address"`
	Since             time.Time       `json:"since"`
	Subscribers       int             `json:"subscribers"`
	Subscriptions     int             `json:"subscriptions"`
	Posts             int             `json:"posts"`
	Bookmarks         int             `json:"bookmarks"`
	TopTopic          string          `json:"top_topic"`
	Score             float64         `json:"score"`
	Topics            map[string]bool `json:"topics,omitempty"`
	Favorites         map[string]bool `json:"favorites,omitempty"`
	FavoriteFor       map[string]bool `json:"favorite_for,omitempty"`
	FavoriteForCount  int             `json:"favorite_for_count"`
	Active            bool            `json:"active"`
	RegistrationToken string          `json:"registrationToken,omitempty"`
	// LegacyToken is the snake_case key some clients still write.
	LegacyToken string `json:"registration_token,omitempty"`
}

// DeviceToken is the push registration token, whichever key holds it.
func (u *User) DeviceToken() string {
	if u.RegistrationToken != "" {
		return u.RegistrationToken
	}
	return u.LegacyToken
}

// Followers returns the ids whose favorite_for entry is true, sorted.
func (u *User) Followers() []string {
	return trueKeys(u.FavoriteFor)
}

// UserCopy is the subscriber/subscription mirror of a user.
type UserCopy struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Pic         string  `json:"pic"`
	Score       float64 `json:"score"`
	Subscribers int     `json:"subscribers"`
	TopTopic    string  `json:"top_topic"`
}

func (c UserCopy) Data() map[string]any {
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"pic":         c.Pic,
		"score":       c.Score,
		"subscribers": c.Subscribers,
		"top_topic":   c.TopTopic,
	}
}

// Copy builds the mirror of u stored in other users' sub-collections.
func (u *User) Copy() UserCopy {
	return UserCopy{ID: u.ID, Name: u.Name, Pic: u.Pic, Score: u.Score, Subscribers: u.Subscribers, TopTopic: u.TopTopic}
}

// Account is an identity provider user record.
type Account struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}

// Session is the heartbeat a client writes while the user is online.
type Session struct {
	LastSeen time.Time `json:"last_seen"`
}
