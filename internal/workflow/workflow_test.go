package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"briefbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- fakes ---

type fakeChat struct {
	message    *domain.ChatMessage
	fetchErr   error
	postErr    error
	reactErr   error
	posted     []postedReply
	reactions  []string
	modalOpens int
}

type postedReply struct {
	channel  string
	threadTS string
	text     string
}

func (f *fakeChat) FetchMessage(ctx context.Context, channel, ts string) (*domain.ChatMessage, error) {
	return f.message, f.fetchErr
}

func (f *fakeChat) PostThreadReply(ctx context.Context, channel, threadTS, text string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, postedReply{channel, threadTS, text})
	return nil
}

func (f *fakeChat) AddReaction(ctx context.Context, channel, ts, name string) error {
	if f.reactErr != nil {
		return f.reactErr
	}
	f.reactions = append(f.reactions, name)
	return nil
}

func (f *fakeChat) OpenQuestionModal(ctx context.Context, triggerID string, prompt domain.QuestionPrompt) error {
	f.modalOpens++
	return nil
}

type fakeAI struct {
	summarized []domain.Article
	questions  []string
}

func (f *fakeAI) Summarize(ctx context.Context, art domain.Article) string {
	f.summarized = append(f.summarized, art)
	return "summary of " + art.URL
}

func (f *fakeAI) Answer(ctx context.Context, art domain.Article, question string) string {
	f.questions = append(f.questions, question)
	return "answer to " + question
}

// fakeStore implements the article, conversation, and interaction contracts
// in memory.
type fakeStore struct {
	articles     map[string]domain.Article
	states       map[string]domain.ConversationState
	interactions []domain.Interaction
	articleErr   error
	stateErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles: make(map[string]domain.Article),
		states:   make(map[string]domain.ConversationState),
	}
}

func (f *fakeStore) UpsertArticle(ctx context.Context, art domain.Article) error {
	if f.articleErr != nil {
		return f.articleErr
	}
	f.articles[art.URL] = art
	return nil
}

func (f *fakeStore) GetArticleByURL(ctx context.Context, url string) (*domain.Article, error) {
	if f.articleErr != nil {
		return nil, f.articleErr
	}
	if art, ok := f.articles[url]; ok {
		return &art, nil
	}
	return nil, nil
}

func (f *fakeStore) ActivateConversation(ctx context.Context, channel, threadTS, articleURL, userID string) error {
	if f.stateErr != nil {
		return f.stateErr
	}
	f.states[channel+"/"+threadTS] = domain.ConversationState{
		Channel: channel, ThreadTS: threadTS, ArticleURL: articleURL, UserID: userID, Active: true,
	}
	return nil
}

func (f *fakeStore) DeactivateConversation(ctx context.Context, channel, threadTS string) error {
	st, ok := f.states[channel+"/"+threadTS]
	if ok {
		st.Active = false
		f.states[channel+"/"+threadTS] = st
	}
	return nil
}

func (f *fakeStore) ActiveConversation(ctx context.Context, channel, threadTS string) (*domain.ConversationState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if st, ok := f.states[channel+"/"+threadTS]; ok && st.Active {
		return &st, nil
	}
	return nil, nil
}

func (f *fakeStore) LogInteraction(ctx context.Context, entry domain.Interaction) error {
	f.interactions = append(f.interactions, entry)
	return nil
}

func newTestReaction(chat *fakeChat, store *fakeStore, ai *fakeAI) *Reaction {
	return NewReaction(ReactionConfig{
		Chat:          chat,
		AI:            ai,
		Articles:      store,
		Conversations: store,
		Log:           store,
		Resolver:      NewResolver(store, testLogger()),
		Trigger:       "+1",
		FailureMark:   "x",
		Logger:        testLogger(),
	})
}

func newTestMessage(chat *fakeChat, store *fakeStore, ai *fakeAI) *Message {
	return NewMessage(MessageConfig{
		Chat:          chat,
		AI:            ai,
		Conversations: store,
		Log:           store,
		Resolver:      NewResolver(store, testLogger()),
		Logger:        testLogger(),
	})
}

// --- extractURL ---

func TestExtractURL(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"<https://example.com/a>", "https://example.com/a"},
		{"check this out <https://example.com/a> great read", "https://example.com/a"},
		{"<https://example.com/a|Example>", "https://example.com/a"},
		{"<http://plain.example>", "http://plain.example"},
		{"no link here", ""},
		{"bare https://example.com without brackets", ""},
		{"<mailto:x@example.com>", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := extractURL(c.text); got != c.want {
			t.Errorf("extractURL(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

// --- Reaction workflow ---

func TestReaction_EndToEnd(t *testing.T) {
	chat := &fakeChat{message: &domain.ChatMessage{Text: "<https://x.com>", TS: "100"}}
	store := newFakeStore()
	ai := &fakeAI{}
	w := newTestReaction(chat, store, ai)

	err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "+1", User: "U1",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// AI was given the placeholder article for the unseen URL.
	if len(ai.summarized) != 1 {
		t.Fatalf("expected 1 summarize call, got %d", len(ai.summarized))
	}
	if ai.summarized[0].Title != placeholderTitle {
		t.Errorf("expected placeholder title, got %q", ai.summarized[0].Title)
	}

	// Summary went into the thread under the reacted-to message.
	if len(chat.posted) != 1 {
		t.Fatalf("expected 1 threaded reply, got %d", len(chat.posted))
	}
	if chat.posted[0].threadTS != "100" || chat.posted[0].channel != "C1" {
		t.Errorf("reply anchored wrong: %+v", chat.posted[0])
	}
	if !strings.Contains(chat.posted[0].text, "summary of https://x.com") {
		t.Errorf("reply missing summary: %q", chat.posted[0].text)
	}

	// Question mode is active for (C1, 100) with the extracted URL.
	st, _ := store.ActiveConversation(context.Background(), "C1", "100")
	if st == nil || st.ArticleURL != "https://x.com" {
		t.Fatalf("expected active state for (C1,100), got %+v", st)
	}

	// Article cached and audit entry appended.
	if _, ok := store.articles["https://x.com"]; !ok {
		t.Error("article should be cached after summarization")
	}
	if len(store.interactions) != 1 || store.interactions[0].Kind != "detail_summary" {
		t.Errorf("expected one detail_summary interaction, got %+v", store.interactions)
	}
}

func TestReaction_IgnoresOtherReactions(t *testing.T) {
	chat := &fakeChat{message: &domain.ChatMessage{Text: "<https://x.com>"}}
	store := newFakeStore()
	w := newTestReaction(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "eyes", User: "U1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chat.posted) != 0 {
		t.Error("non-trigger reaction must not post")
	}
}

func TestReaction_IgnoresNonMessageItems(t *testing.T) {
	chat := &fakeChat{message: &domain.ChatMessage{Text: "<https://x.com>"}}
	store := newFakeStore()
	w := newTestReaction(chat, store, &fakeAI{})

	for _, itemType := range []string{"file", "file_comment", ""} {
		err := w.Handle(context.Background(), domain.ReactionEvent{
			Channel: "C1", ItemType: itemType, ItemTS: "100", Reaction: "+1", User: "U1",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(chat.posted) != 0 || len(chat.reactions) != 0 {
		t.Error("reactions on non-message items must be ignored, not failed")
	}
	if len(store.states) != 0 {
		t.Error("no state may be written for a non-message item")
	}
}

func TestReaction_NoURLIsNoop(t *testing.T) {
	chat := &fakeChat{message: &domain.ChatMessage{Text: "just words, no link"}}
	store := newFakeStore()
	w := newTestReaction(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "+1", User: "U1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chat.posted) != 0 || len(chat.reactions) != 0 {
		t.Error("linkless message is a no-op, not a failure")
	}
	if len(store.states) != 0 {
		t.Error("no state may be written for a no-op")
	}
}

func TestReaction_FetchFailureAddsMarker(t *testing.T) {
	chat := &fakeChat{fetchErr: errors.New("channel_not_found")}
	store := newFakeStore()
	w := newTestReaction(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "+1", User: "U1",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(chat.reactions) != 1 || chat.reactions[0] != "x" {
		t.Errorf("expected failure marker x, got %v", chat.reactions)
	}
}

func TestReaction_PostFailureAddsMarker(t *testing.T) {
	chat := &fakeChat{
		message: &domain.ChatMessage{Text: "<https://x.com>"},
		postErr: errors.New("not_in_channel"),
	}
	store := newFakeStore()
	w := newTestReaction(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "+1", User: "U1",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(chat.reactions) != 1 {
		t.Errorf("expected failure marker, got %v", chat.reactions)
	}
	if len(store.states) != 0 {
		t.Error("question mode must not activate when the post failed")
	}
}

func TestReaction_MarkerFailureOnlyLogged(t *testing.T) {
	chat := &fakeChat{
		fetchErr: errors.New("boom"),
		reactErr: errors.New("reaction failed too"),
	}
	w := newTestReaction(chat, newFakeStore(), &fakeAI{})

	// The original error survives; the marker failure never escalates.
	err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "+1", User: "U1",
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestReaction_UsesCachedArticle(t *testing.T) {
	chat := &fakeChat{message: &domain.ChatMessage{Text: "<https://known.com>"}}
	store := newFakeStore()
	store.articles["https://known.com"] = domain.Article{
		URL: "https://known.com", Title: "Known Title", Description: "d",
	}
	ai := &fakeAI{}
	w := newTestReaction(chat, store, ai)

	if err := w.Handle(context.Background(), domain.ReactionEvent{
		Channel: "C1", ItemType: "message", ItemTS: "100", Reaction: "+1", User: "U1",
	}); err != nil {
		t.Fatal(err)
	}
	if ai.summarized[0].Title != "Known Title" {
		t.Errorf("expected cached article passed to AI, got %q", ai.summarized[0].Title)
	}
}

// --- Message workflow ---

func TestMessage_AnswersWhenQuestionModeActive(t *testing.T) {
	chat := &fakeChat{}
	store := newFakeStore()
	store.ActivateConversation(context.Background(), "C1", "100", "https://x.com", "U1")
	ai := &fakeAI{}
	w := newTestMessage(chat, store, ai)

	err := w.Handle(context.Background(), domain.MessageEvent{
		Channel: "C1", ThreadTS: "100", User: "U2", Text: "what language?",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(ai.questions) != 1 || ai.questions[0] != "what language?" {
		t.Errorf("expected question forwarded to AI, got %v", ai.questions)
	}
	if len(chat.posted) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(chat.posted))
	}
	if !strings.Contains(chat.posted[0].text, "answer to what language?") {
		t.Errorf("unexpected reply: %q", chat.posted[0].text)
	}
	if len(store.interactions) != 1 || store.interactions[0].Kind != "question_answer" {
		t.Errorf("expected one question_answer interaction, got %+v", store.interactions)
	}
	if store.interactions[0].Question != "what language?" {
		t.Errorf("interaction should record the question, got %+v", store.interactions[0])
	}

	// Question mode persists after a successful answer.
	st, _ := store.ActiveConversation(context.Background(), "C1", "100")
	if st == nil {
		t.Error("question mode must stay active after answering")
	}
}

func TestMessage_NoActiveStateIsNoop(t *testing.T) {
	chat := &fakeChat{}
	store := newFakeStore()
	w := newTestMessage(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.MessageEvent{
		Channel: "C1", ThreadTS: "100", User: "U2", Text: "random chatter",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chat.posted) != 0 || len(store.interactions) != 0 {
		t.Error("thread chatter without question mode must be ignored")
	}
}

func TestMessage_EmptyThreadAnchorIsNoop(t *testing.T) {
	chat := &fakeChat{}
	store := newFakeStore()
	store.ActivateConversation(context.Background(), "C1", "100", "https://x.com", "U1")
	w := newTestMessage(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.MessageEvent{
		Channel: "C1", ThreadTS: "", User: "U2", Text: "top-level message",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chat.posted) != 0 || len(store.interactions) != 0 {
		t.Error("non-thread message must be ignored")
	}
}

func TestMessage_BotMessagesIgnored(t *testing.T) {
	chat := &fakeChat{}
	store := newFakeStore()
	store.ActivateConversation(context.Background(), "C1", "100", "https://x.com", "U1")
	w := newTestMessage(chat, store, &fakeAI{})

	for _, ev := range []domain.MessageEvent{
		{Channel: "C1", ThreadTS: "100", BotID: "B1", Text: "bot text"},
		{Channel: "C1", ThreadTS: "100", SubType: "bot_message", Text: "subtype text"},
	} {
		if err := w.Handle(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	if len(chat.posted) != 0 {
		t.Error("bot messages must never be answered")
	}
}

func TestMessage_ThreadBroadcastAnswered(t *testing.T) {
	chat := &fakeChat{}
	store := newFakeStore()
	store.ActivateConversation(context.Background(), "C1", "100", "https://x.com", "U1")
	ai := &fakeAI{}
	w := newTestMessage(chat, store, ai)

	// "Also send to channel" replies carry the thread_broadcast subtype but
	// are still user questions.
	err := w.Handle(context.Background(), domain.MessageEvent{
		Channel: "C1", ThreadTS: "100", User: "U2", Text: "broadcast question",
		SubType: "thread_broadcast",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chat.posted) != 1 {
		t.Fatalf("thread_broadcast questions must be answered, got %d posts", len(chat.posted))
	}
	if !strings.Contains(chat.posted[0].text, "answer to broadcast question") {
		t.Errorf("unexpected reply: %q", chat.posted[0].text)
	}
}

func TestMessage_StateLookupErrorPropagates(t *testing.T) {
	chat := &fakeChat{}
	store := newFakeStore()
	store.stateErr = errors.New("db locked")
	w := newTestMessage(chat, store, &fakeAI{})

	err := w.Handle(context.Background(), domain.MessageEvent{
		Channel: "C1", ThreadTS: "100", User: "U2", Text: "q",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(chat.posted) != 0 {
		t.Error("no reply may be posted when the lookup failed")
	}
}

// --- Resolver ---

func TestResolver_PlaceholderForUnknownURL(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, testLogger())

	art := r.Resolve(context.Background(), "https://new.com")
	if art.Title != placeholderTitle || art.URL != "https://new.com" {
		t.Errorf("unexpected placeholder: %+v", art)
	}
}

func TestResolver_PlaceholderOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.articleErr = errors.New("db gone")
	r := NewResolver(store, testLogger())

	art := r.Resolve(context.Background(), "https://x.com")
	if art.Title != placeholderTitle {
		t.Errorf("store errors must degrade to the placeholder, got %+v", art)
	}
}
