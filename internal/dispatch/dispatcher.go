// Package dispatch exposes the HTTP surface: the Events API webhook, the
// interactivity webhook, and the timeout guard both run their workflows
// under. Slack retries any delivery that is not acknowledged within 3
// seconds, so handlers acknowledge with 200 even when processing fails; a
// non-200 would only make Slack resend an event the bot already acted on.
package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"briefbot/internal/domain"
	"briefbot/internal/metrics"
	"briefbot/internal/workflow"

	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"
)

// Dispatcher terminates Events API deliveries: dedup first, then route to
// the reaction or message workflow.
type Dispatcher struct {
	ledger    domain.EventLedger
	reactions *workflow.Reaction
	messages  *workflow.Message
	guard     *Guard
	logger    *slog.Logger
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Ledger    domain.EventLedger
	Reactions *workflow.Reaction
	Messages  *workflow.Message
	Guard     *Guard
	Logger    *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		ledger:    cfg.Ledger,
		reactions: cfg.Reactions,
		messages:  cfg.Messages,
		guard:     cfg.Guard,
		logger:    cfg.Logger,
	}
}

// innerHeader is the envelope every inner event shares. Deliveries are
// deduplicated on these fields before the event kind is even looked at, so
// kinds the bot does not handle still land in the ledger.
type innerHeader struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	EventTS string `json:"event_ts"`
}

// HandleEvents is the Events API webhook handler.
func (d *Dispatcher) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusInternalServerError)
		return
	}

	log := d.logger.With("delivery", uuid.NewString())

	// Slack resends after 3s without an ack. By the time a retry arrives the
	// first delivery is already being worked on, so retries are acked and
	// dropped without touching the ledger.
	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		metrics.EventsRetry.Inc()
		log.Debug("dropping slack retry delivery", "retry_num", retry)
		respondOK(w)
		return
	}

	metrics.EventsReceived.Inc()

	api, err := slackevents.ParseEvent(body, slackevents.OptionNoVerifyToken())
	if err != nil {
		log.Error("unparseable event payload", "err", err)
		http.Error(w, "bad event payload", http.StatusInternalServerError)
		return
	}

	switch api.Type {
	case slackevents.URLVerification:
		var ch slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &ch); err != nil {
			http.Error(w, "bad challenge payload", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(ch.Challenge))

	case slackevents.CallbackEvent:
		d.handleCallback(r.Context(), log, api)
		respondOK(w)

	default:
		log.Debug("ignoring delivery", "type", api.Type)
		respondOK(w)
	}
}

func (d *Dispatcher) handleCallback(reqCtx context.Context, log *slog.Logger, api slackevents.EventsAPIEvent) {
	cb, ok := api.Data.(*slackevents.EventsAPICallbackEvent)
	if !ok || cb.InnerEvent == nil {
		log.Warn("callback without inner event")
		return
	}

	var hdr innerHeader
	if err := json.Unmarshal(*cb.InnerEvent, &hdr); err != nil {
		log.Warn("undecodable inner event", "err", err)
		return
	}

	eventID := domain.EventID(hdr.EventTS, hdr.User, domain.EventKind(hdr.Type))
	log = log.With("event_id", eventID)

	dup, err := d.ledger.MarkSeen(reqCtx, eventID)
	if err != nil {
		// A broken ledger must not silence the bot. Worst case is a
		// duplicate reply, which beats no reply.
		log.Warn("ledger unavailable, processing without dedup", "err", err)
	} else if dup {
		metrics.EventsDuplicate.Inc()
		log.Debug("duplicate delivery dropped")
		return
	}

	// Workflows outlive the webhook exchange. Detach from the request
	// context so a Slack disconnect does not cancel in-flight work; the
	// guard supplies the deadline.
	ctx := context.WithoutCancel(reqCtx)

	switch ev := api.InnerEvent.Data.(type) {
	case *slackevents.ReactionAddedEvent:
		re := domain.ReactionEvent{
			EventID:  eventID,
			Channel:  ev.Item.Channel,
			ItemType: ev.Item.Type,
			ItemTS:   ev.Item.Timestamp,
			Reaction: ev.Reaction,
			User:     ev.User,
		}
		d.guard.Run(ctx, "reaction", func(ctx context.Context) error {
			return d.reactions.Handle(ctx, re)
		})

	case *slackevents.MessageEvent:
		me := domain.MessageEvent{
			EventID:  eventID,
			Channel:  ev.Channel,
			ThreadTS: ev.ThreadTimeStamp,
			User:     ev.User,
			Text:     ev.Text,
			BotID:    ev.BotID,
			SubType:  ev.SubType,
		}
		d.guard.Run(ctx, "message", func(ctx context.Context) error {
			return d.messages.Handle(ctx, me)
		})

	default:
		log.Debug("ignoring inner event", "type", hdr.Type)
	}
}

func respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}
