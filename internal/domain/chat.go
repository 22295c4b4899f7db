package domain

import "context"

// ChatMessage is the subset of a fetched chat message the workflows need.
type ChatMessage struct {
	Text string
	User string
	TS   string
}

// QuestionPrompt identifies where a modal-submitted question should be
// answered. It rides along in the modal's private metadata.
type QuestionPrompt struct {
	ArticleURL string `json:"article_url"`
	Channel    string `json:"channel"`
	ThreadTS   string `json:"thread_ts"`
}

// ChatClient is the chat-platform collaborator consumed by the workflows.
type ChatClient interface {
	// FetchMessage returns the message at ts in channel, or nil when it
	// cannot be found.
	FetchMessage(ctx context.Context, channel, ts string) (*ChatMessage, error)
	// PostThreadReply posts text as a threaded reply anchored at threadTS.
	PostThreadReply(ctx context.Context, channel, threadTS, text string) error
	// AddReaction adds the named reaction to the message at ts.
	AddReaction(ctx context.Context, channel, ts, name string) error
	// OpenQuestionModal opens the question input dialog for triggerID.
	OpenQuestionModal(ctx context.Context, triggerID string, prompt QuestionPrompt) error
}

// Summarizer is the AI collaborator. Both operations return user-facing text
// unconditionally: internal failures yield a placeholder string, never an
// error, so workflows always have something to post.
type Summarizer interface {
	Summarize(ctx context.Context, art Article) string
	Answer(ctx context.Context, art Article, question string) string
}
