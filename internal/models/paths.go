package models

// Collection names.
const (
	Users                      = "users"
	Posts                      = "posts"
	Topics                     = "topics"
	Ratings                    = "ratings"
	Bookmarks                  = "bookmarks"
	Readings                   = "readings"
	Shares                     = "shares"
	Feed                       = "feed"
	Subscribers                = "subscribers"
	Subscriptions              = "subscriptions"
	Notifications              = "notifications"
	Sessions                   = "sessions"
	AddToFavoriteRequests      = "add_to_favorite_requests"
	RemoveFromFavoriteRequests = "remove_from_favorite_requests"
)

func UserPath(id string) string  { return Users + "/" + id }
func PostPath(id string) string  { return Posts + "/" + id }
func TopicPath(id string) string { return Topics + "/" + id }

func NotificationPath(id string) string { return Notifications + "/" + id }
func SessionPath(uid string) string     { return Sessions + "/" + uid }

// UserSub is the path of a user sub-collection such as users/u1/feed.
func UserSub(userID, collection string) string {
	return UserPath(userID) + "/" + collection
}

func FeedEntryPath(userID, postID string) string {
	return UserSub(userID, Feed) + "/" + postID
}

func RatingsPath(postID string) string {
	return PostPath(postID) + "/" + Ratings
}

func TopicPostPath(topicID, postID string) string {
	return TopicPath(topicID) + "/" + Posts + "/" + postID
}

func UserPostPath(userID, postID string) string {
	return UserSub(userID, Posts) + "/" + postID
}
