package domain

import "time"

// ConversationState marks a (channel, thread) pair as being in question mode
// for a given article. At most one active state exists per key; activating a
// new one deactivates, never deletes, the previous record.
type ConversationState struct {
	ID         int64     `json:"id"`
	Channel    string    `json:"channel"`
	ThreadTS   string    `json:"thread_ts"`
	ArticleURL string    `json:"article_url"`
	UserID     string    `json:"user_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
