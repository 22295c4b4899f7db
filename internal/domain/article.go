package domain

import "time"

// Article is a previously shared link with whatever metadata has been
// collected for it. URL is the unique key.
type Article struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Summary     string    `json:"summary"`
	PostedDate  string    `json:"posted_date"` // YYYY-MM-DD
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Interaction is one append-only audit record of a user-visible exchange.
// The core never reads these back.
type Interaction struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"` // detail_summary | question_answer
	UserID     string    `json:"user_id"`
	ArticleURL string    `json:"article_url"`
	Question   string    `json:"question"`
	Response   string    `json:"response"`
	Channel    string    `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
}
