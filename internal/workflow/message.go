package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"briefbot/internal/domain"
	"briefbot/internal/metrics"
)

// Message runs the answer-in-thread flow.
type Message struct {
	chat          domain.ChatClient
	ai            domain.Summarizer
	conversations domain.ConversationStore
	log           domain.InteractionLog
	resolver      *Resolver
	logger        *slog.Logger
}

type MessageConfig struct {
	Chat          domain.ChatClient
	AI            domain.Summarizer
	Conversations domain.ConversationStore
	Log           domain.InteractionLog
	Resolver      *Resolver
	Logger        *slog.Logger
}

func NewMessage(cfg MessageConfig) *Message {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Message{
		chat:          cfg.Chat,
		ai:            cfg.AI,
		conversations: cfg.Conversations,
		log:           cfg.Log,
		resolver:      cfg.Resolver,
		logger:        cfg.Logger,
	}
}

// Handle processes a thread message. Without an active conversation state for
// (channel, threadTS) the message is ordinary thread chatter and nothing
// happens. No state transition occurs on success: the thread stays in
// question mode until superseded.
func (w *Message) Handle(ctx context.Context, ev domain.MessageEvent) error {
	if !ev.InThread() || ev.FromBot() {
		return nil
	}

	state, err := w.conversations.ActiveConversation(ctx, ev.Channel, ev.ThreadTS)
	if err != nil {
		return fmt.Errorf("conversation lookup %s/%s: %w", ev.Channel, ev.ThreadTS, err)
	}
	if state == nil {
		w.logger.Debug("no active question mode for thread",
			"channel", ev.Channel, "thread", ev.ThreadTS)
		return nil
	}

	return w.AnswerPrompt(ctx, domain.QuestionPrompt{
		ArticleURL: state.ArticleURL,
		Channel:    ev.Channel,
		ThreadTS:   ev.ThreadTS,
	}, ev.User, ev.Text)
}

// AnswerPrompt resolves the article, generates the answer, posts it into the
// thread and appends the audit record. Shared by the thread flow and the
// question modal submission.
func (w *Message) AnswerPrompt(ctx context.Context, prompt domain.QuestionPrompt, userID, question string) error {
	art := w.resolver.Resolve(ctx, prompt.ArticleURL)
	answer := w.ai.Answer(ctx, art, question)

	if err := w.chat.PostThreadReply(ctx, prompt.Channel, prompt.ThreadTS, "🤖 *Answer*\n\n"+answer); err != nil {
		return fmt.Errorf("post answer: %w", err)
	}
	metrics.AnswersTotal.Inc()

	if err := w.log.LogInteraction(ctx, domain.Interaction{
		Kind:       "question_answer",
		UserID:     userID,
		ArticleURL: prompt.ArticleURL,
		Question:   question,
		Response:   answer,
		Channel:    prompt.Channel,
	}); err != nil {
		w.logger.Warn("interaction log append failed", "err", err)
	}

	w.logger.Info("question answered",
		"channel", prompt.Channel, "thread", prompt.ThreadTS, "url", prompt.ArticleURL)
	return nil
}
