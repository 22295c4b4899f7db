// Package chat implements the chat-platform collaborator on the Slack Web API.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"briefbot/internal/domain"

	"github.com/slack-go/slack"
)

const (
	slackMaxMsgLen     = 4000
	defaultHTTPTimeout = 30 * time.Second
)

// Identifiers shared with the interaction endpoint, which reads the
// submitted modal back out of the view state by block and action ID.
const (
	QuestionModalCallbackID = "question_modal"
	QuestionBlockID         = "question_block"
	QuestionActionID        = "question_input"
)

// Slack implements domain.ChatClient.
type Slack struct {
	client *slack.Client
	logger *slog.Logger
}

// SlackConfig configures the Slack client.
type SlackConfig struct {
	BotToken string
	Logger   *slog.Logger
}

func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	api := slack.New(
		cfg.BotToken,
		slack.OptionHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}),
	)
	return &Slack{client: api, logger: cfg.Logger}
}

// FetchMessage looks up the message at ts via conversations.history with
// latest=ts, inclusive and limit 1. Returns nil when the message is gone
// (deleted, or the bot lost access).
func (s *Slack) FetchMessage(ctx context.Context, channel, ts string) (*domain.ChatMessage, error) {
	resp, err := s.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.history %s/%s: %w", channel, ts, err)
	}
	if len(resp.Messages) == 0 {
		s.logger.Warn("message not found", "channel", channel, "ts", ts)
		return nil, nil
	}
	msg := resp.Messages[0]
	return &domain.ChatMessage{
		Text: msg.Text,
		User: msg.User,
		TS:   msg.Timestamp,
	}, nil
}

// PostThreadReply posts text under threadTS with unfurling disabled. Replies
// longer than Slack's message limit are split on line boundaries.
func (s *Slack) PostThreadReply(ctx context.Context, channel, threadTS, text string) error {
	for _, chunk := range splitMessage(text, slackMaxMsgLen) {
		_, _, err := s.client.PostMessageContext(ctx, channel,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionTS(threadTS),
			slack.MsgOptionDisableLinkUnfurl(),
			slack.MsgOptionDisableMediaUnfurl(),
		)
		if err != nil {
			return fmt.Errorf("chat.postMessage %s thread %s: %w", channel, threadTS, err)
		}
	}
	return nil
}

func (s *Slack) AddReaction(ctx context.Context, channel, ts, name string) error {
	err := s.client.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
	if err != nil {
		// Slack answers already_reacted when the bot raced itself; that is fine.
		if strings.Contains(err.Error(), "already_reacted") {
			return nil
		}
		return fmt.Errorf("reactions.add %s to %s/%s: %w", name, channel, ts, err)
	}
	return nil
}

// OpenQuestionModal opens the question input dialog. The prompt rides in the
// view's private metadata so the submission handler knows which thread to
// answer in.
func (s *Slack) OpenQuestionModal(ctx context.Context, triggerID string, prompt domain.QuestionPrompt) error {
	meta, err := json.Marshal(prompt)
	if err != nil {
		return fmt.Errorf("encode modal metadata: %w", err)
	}

	input := slack.NewPlainTextInputBlockElement(
		slack.NewTextBlockObject(slack.PlainTextType, "Ask anything about this article...", false, false),
		QuestionActionID,
	)
	input.Multiline = true

	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      QuestionModalCallbackID,
		PrivateMetadata: string(meta),
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Ask about the article", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Send", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewInputBlock(QuestionBlockID,
					slack.NewTextBlockObject(slack.PlainTextType, "Question", false, false),
					nil,
					input,
				),
			},
		},
	}

	if _, err := s.client.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("views.open: %w", err)
	}
	return nil
}

// splitMessage splits msg into chunks of at most maxLen bytes, preferring to
// cut at a newline past the halfway point.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
