package domain

import "context"

// ArticleStore persists article metadata keyed by URL.
type ArticleStore interface {
	// UpsertArticle inserts or replaces the article for its URL.
	UpsertArticle(ctx context.Context, art Article) error
	// GetArticleByURL returns nil when the URL has not been seen.
	GetArticleByURL(ctx context.Context, url string) (*Article, error)
}

// ConversationStore persists question-mode state per (channel, threadTS).
type ConversationStore interface {
	// ActivateConversation deactivates any existing active state for the key
	// and inserts a new active record.
	ActivateConversation(ctx context.Context, channel, threadTS, articleURL, userID string) error
	// DeactivateConversation tombstones the active state for the key, if any.
	DeactivateConversation(ctx context.Context, channel, threadTS string) error
	// ActiveConversation returns the newest active state for the key, or nil.
	ActiveConversation(ctx context.Context, channel, threadTS string) (*ConversationState, error)
}

// InteractionLog appends audit records. Write-only from the core's view.
type InteractionLog interface {
	LogInteraction(ctx context.Context, entry Interaction) error
}

// EventLedger records event identities already handled so that at-least-once
// webhook delivery produces at-most-once effects.
type EventLedger interface {
	// MarkSeen records eventID and reports whether it was already present.
	// The check and the write are atomic with respect to concurrent calls for
	// the same eventID. Implementations sweep expired records opportunistically.
	MarkSeen(ctx context.Context, eventID string) (duplicate bool, err error)
	// Seen reports whether eventID is currently recorded.
	Seen(ctx context.Context, eventID string) (bool, error)
}
