package domain

import "fmt"

// EventKind classifies an inbound webhook event.
type EventKind string

const (
	KindReaction EventKind = "reaction_added"
	KindMessage  EventKind = "message"
)

// ReactionEvent is a reaction applied to an item. Reactions land on
// messages, files, and file comments; only message items carry a thread to
// summarize into.
type ReactionEvent struct {
	EventID  string
	Channel  string
	ItemType string // "message", "file", or "file_comment"
	ItemTS   string // timestamp of the reacted-to message
	Reaction string
	User     string
}

// OnMessage reports whether the reacted-to item is a message.
func (r ReactionEvent) OnMessage() bool { return r.ItemType == "message" }

// MessageEvent is a message posted to a channel or thread.
type MessageEvent struct {
	EventID  string
	Channel  string
	ThreadTS string // empty when the message is not a thread reply
	User     string
	Text     string
	BotID    string
	SubType  string
}

// InThread reports whether the message was posted inside a reply thread.
func (m MessageEvent) InThread() bool { return m.ThreadTS != "" }

// FromBot reports whether the message was authored by a bot. Only the
// bot_message subtype is excluded; user messages with other subtypes, such
// as thread_broadcast, still deserve an answer.
func (m MessageEvent) FromBot() bool { return m.BotID != "" || m.SubType == "bot_message" }

// EventID builds the composite identity used for deduplication. Slack does
// not attach a usable unique ID to the inner event, so the timestamp, emitter
// and kind are combined. Rapid identical events from the same user within the
// same timestamp collapse to one ID; that matches the upstream behavior.
func EventID(eventTS, user string, kind EventKind) string {
	return fmt.Sprintf("%s_%s_%s", eventTS, user, kind)
}
