// Package workflow holds the two business flows: summarize-on-reaction and
// answer-in-thread. Both orchestrate the chat client, the AI collaborator and
// the persistent stores behind small domain interfaces.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"briefbot/internal/domain"
	"briefbot/internal/metrics"
)

const summaryHint = "\n\n💡 _Ask a question in this thread and the AI will answer based on the article._"

// urlPattern matches the first Slack-formatted link in a message. Slack wraps
// links as <url> or <url|label>.
var urlPattern = regexp.MustCompile(`<(https?://[^>]+)>`)

// Reaction runs the summarize-on-reaction flow.
type Reaction struct {
	chat          domain.ChatClient
	ai            domain.Summarizer
	articles      domain.ArticleStore
	conversations domain.ConversationStore
	log           domain.InteractionLog
	resolver      *Resolver
	trigger       string
	failureMark   string
	logger        *slog.Logger
}

type ReactionConfig struct {
	Chat          domain.ChatClient
	AI            domain.Summarizer
	Articles      domain.ArticleStore
	Conversations domain.ConversationStore
	Log           domain.InteractionLog
	Resolver      *Resolver
	Trigger       string // reaction name that triggers the flow, e.g. "+1"
	FailureMark   string // reaction posted when the flow fails, e.g. "x"
	Logger        *slog.Logger
}

func NewReaction(cfg ReactionConfig) *Reaction {
	if cfg.Trigger == "" {
		cfg.Trigger = "+1"
	}
	if cfg.FailureMark == "" {
		cfg.FailureMark = "x"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reaction{
		chat:          cfg.Chat,
		ai:            cfg.AI,
		articles:      cfg.Articles,
		conversations: cfg.Conversations,
		log:           cfg.Log,
		resolver:      cfg.Resolver,
		trigger:       cfg.Trigger,
		failureMark:   cfg.FailureMark,
		logger:        cfg.Logger,
	}
}

// Handle processes a reaction event. Non-trigger reactions and messages
// without a link are no-ops. Failures past the link check are surfaced to the
// user via the failure reaction.
func (w *Reaction) Handle(ctx context.Context, ev domain.ReactionEvent) error {
	if ev.Reaction != w.trigger {
		w.logger.Debug("ignoring reaction", "reaction", ev.Reaction)
		return nil
	}
	if !ev.OnMessage() {
		w.logger.Debug("ignoring reaction on non-message item", "item_type", ev.ItemType)
		return nil
	}

	msg, err := w.chat.FetchMessage(ctx, ev.Channel, ev.ItemTS)
	if err != nil {
		return w.fail(ctx, ev, fmt.Errorf("fetch reacted-to message: %w", err))
	}
	if msg == nil || msg.Text == "" {
		return w.fail(ctx, ev, fmt.Errorf("reacted-to message %s/%s not found", ev.Channel, ev.ItemTS))
	}

	url := extractURL(msg.Text)
	if url == "" {
		w.logger.Info("no link in reacted-to message", "channel", ev.Channel, "ts", ev.ItemTS)
		return nil
	}

	if err := w.PostSummary(ctx, ev.Channel, ev.ItemTS, url, ev.User); err != nil {
		return w.fail(ctx, ev, err)
	}
	return nil
}

// PostSummary resolves the article, generates the detailed summary, posts it
// as a threaded reply and, on success, activates question mode for the
// thread. Shared by the reaction flow and the interactive detail button.
func (w *Reaction) PostSummary(ctx context.Context, channel, threadTS, url, userID string) error {
	art := w.resolver.Resolve(ctx, url)
	summary := w.ai.Summarize(ctx, art)

	text := "📚 *Detailed summary*\n\n" + summary + summaryHint
	if err := w.chat.PostThreadReply(ctx, channel, threadTS, text); err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	metrics.SummariesTotal.Inc()

	// The reply is out; everything below is state upkeep. Failures here lose
	// follow-up features, not the user-visible result, so they are logged
	// rather than escalated into the failure marker.
	art.Summary = summary
	if err := w.articles.UpsertArticle(ctx, art); err != nil {
		w.logger.Error("article upsert failed", "url", url, "err", err)
	}

	if err := w.conversations.ActivateConversation(ctx, channel, threadTS, url, userID); err != nil {
		w.logger.Error("question mode activation failed",
			"channel", channel, "thread", threadTS, "err", err)
	}

	if err := w.log.LogInteraction(ctx, domain.Interaction{
		Kind:       "detail_summary",
		UserID:     userID,
		ArticleURL: url,
		Response:   summary,
		Channel:    channel,
	}); err != nil {
		w.logger.Warn("interaction log append failed", "err", err)
	}

	w.logger.Info("detailed summary posted", "channel", channel, "thread", threadTS, "url", url)
	return nil
}

// fail posts the failure marker on the original message as a user-visible
// signal. A failure to add the marker is itself only logged.
func (w *Reaction) fail(ctx context.Context, ev domain.ReactionEvent, err error) error {
	if markErr := w.chat.AddReaction(ctx, ev.Channel, ev.ItemTS, w.failureMark); markErr != nil {
		w.logger.Error("failed to add failure reaction",
			"channel", ev.Channel, "ts", ev.ItemTS, "err", markErr)
	}
	return err
}

// extractURL returns the first Slack-formatted link in text, with any |label
// suffix stripped, or "" when there is none.
func extractURL(text string) string {
	m := urlPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	url, _, _ := strings.Cut(m[1], "|")
	return url
}
