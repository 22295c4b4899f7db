package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"briefbot/internal/chat"
	"briefbot/internal/domain"
	"briefbot/internal/workflow"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
)

// Action IDs and value prefixes carried by the buttons under a digest post.
const (
	actionDetailSummary = "detail_summary"
	actionAskQuestion   = "ask_question"

	valueDetailPrefix   = "detail"
	valueQuestionPrefix = "question"
)

// Interactions terminates the interactivity webhook: digest buttons and the
// question modal submission. Unlike the events webhook, every interactive
// payload is signature-verified, since button clicks arrive with the signing
// headers and carry a trigger ID usable to open modals.
type Interactions struct {
	signingSecret string
	chat          domain.ChatClient
	reactions     *workflow.Reaction
	messages      *workflow.Message
	guard         *Guard
	logger        *slog.Logger
}

// InteractionsConfig configures an Interactions handler.
type InteractionsConfig struct {
	SigningSecret string
	Chat          domain.ChatClient
	Reactions     *workflow.Reaction
	Messages      *workflow.Message
	Guard         *Guard
	Logger        *slog.Logger
}

func NewInteractions(cfg InteractionsConfig) *Interactions {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Interactions{
		signingSecret: cfg.SigningSecret,
		chat:          cfg.Chat,
		reactions:     cfg.Reactions,
		messages:      cfg.Messages,
		guard:         cfg.Guard,
		logger:        cfg.Logger,
	}
}

// HandleInteractions is the interactivity webhook handler.
func (h *Interactions) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusInternalServerError)
		return
	}

	log := h.logger.With("delivery", uuid.NewString())

	verifier, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		log.Warn("missing signature headers", "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	verifier.Write(body)
	if err := verifier.Ensure(); err != nil {
		log.Warn("signature mismatch", "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Interactive payloads arrive form-encoded under "payload".
	raw := string(body)
	if vals, err := url.ParseQuery(raw); err == nil && vals.Get("payload") != "" {
		raw = vals.Get("payload")
	}

	// Slack probes new interactivity URLs with a bare challenge document.
	var probe struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err == nil && probe.Challenge != "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"challenge": probe.Challenge})
		return
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		log.Error("unparseable interaction payload", "err", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	ctx := context.WithoutCancel(r.Context())

	switch cb.Type {
	case slack.InteractionTypeBlockActions, slack.InteractionTypeInteractionMessage:
		h.handleBlockActions(ctx, log, cb)
		w.WriteHeader(http.StatusOK)

	case slack.InteractionTypeViewSubmission:
		h.handleViewSubmission(ctx, log, cb)
		// An empty JSON body closes the modal.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))

	default:
		log.Debug("ignoring interaction", "type", cb.Type)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Interactions) handleBlockActions(ctx context.Context, log *slog.Logger, cb slack.InteractionCallback) {
	for _, action := range cb.ActionCallback.BlockActions {
		h.runAction(ctx, log, cb, action.ActionID, action.Value)
	}
	// Legacy interactive_message payloads carry attachment actions instead.
	for _, action := range cb.ActionCallback.AttachmentActions {
		h.runAction(ctx, log, cb, action.Name, action.Value)
	}
}

func (h *Interactions) runAction(ctx context.Context, log *slog.Logger, cb slack.InteractionCallback, actionID, value string) {
	kind, articleURL := parseActionValue(value)
	log = log.With("action", actionID, "url", articleURL)

	switch {
	case actionID == actionDetailSummary && kind == valueDetailPrefix:
		channel, threadTS, user := cb.Channel.ID, cb.Message.Timestamp, cb.User.ID
		go h.guard.Run(ctx, "detail_summary", func(ctx context.Context) error {
			return h.reactions.PostSummary(ctx, channel, threadTS, articleURL, user)
		})

	case actionID == actionAskQuestion && kind == valueQuestionPrefix:
		prompt := domain.QuestionPrompt{
			ArticleURL: articleURL,
			Channel:    cb.Channel.ID,
			ThreadTS:   cb.Message.Timestamp,
		}
		if err := h.chat.OpenQuestionModal(ctx, cb.TriggerID, prompt); err != nil {
			log.Error("failed to open question modal", "err", err)
		}

	default:
		log.Debug("unrecognized action")
	}
}

func (h *Interactions) handleViewSubmission(ctx context.Context, log *slog.Logger, cb slack.InteractionCallback) {
	if cb.View.CallbackID != chat.QuestionModalCallbackID {
		log.Debug("ignoring view submission", "callback_id", cb.View.CallbackID)
		return
	}

	var prompt domain.QuestionPrompt
	if err := json.Unmarshal([]byte(cb.View.PrivateMetadata), &prompt); err != nil {
		log.Error("undecodable modal metadata", "err", err)
		return
	}

	if cb.View.State == nil {
		log.Error("view submission without state")
		return
	}
	question := cb.View.State.Values[chat.QuestionBlockID][chat.QuestionActionID].Value
	if strings.TrimSpace(question) == "" {
		log.Debug("empty question submitted")
		return
	}

	user := cb.User.ID
	go h.guard.Run(ctx, "modal_question", func(ctx context.Context) error {
		return h.messages.AnswerPrompt(ctx, prompt, user, question)
	})
}

// parseActionValue splits a button value like "detail:https://example.com"
// at the first colon only, so URL schemes survive intact.
func parseActionValue(value string) (kind, articleURL string) {
	kind, articleURL, _ = strings.Cut(value, ":")
	return kind, articleURL
}
