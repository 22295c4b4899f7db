// Package store persists articles, conversation state, the interaction audit
// trail, and the durable processed-event ledger in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"briefbot/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultLedgerRetention = 30 * time.Minute

// SQLiteStore implements domain.ArticleStore, domain.ConversationStore,
// domain.InteractionLog and the durable tier of domain.EventLedger.
type SQLiteStore struct {
	db              *sql.DB
	ledgerRetention time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

type Config struct {
	DBPath          string
	LedgerRetention time.Duration
	Logger          *slog.Logger
}

func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.LedgerRetention <= 0 {
		cfg.LedgerRetention = defaultLedgerRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &SQLiteStore{
		db:              db,
		ledgerRetention: cfg.LedgerRetention,
		logger:          cfg.Logger,
		now:             time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		url          TEXT UNIQUE NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT,
		summary      TEXT,
		posted_date  TEXT,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url);

	CREATE TABLE IF NOT EXISTS conversation_states (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel     TEXT NOT NULL,
		thread_ts   TEXT NOT NULL,
		article_url TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		active      INTEGER DEFAULT 1,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_key ON conversation_states(channel, thread_ts);

	CREATE TABLE IF NOT EXISTS interactions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		article_url TEXT,
		question    TEXT,
		response    TEXT,
		channel     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id);

	CREATE TABLE IF NOT EXISTS processed_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id   TEXT UNIQUE NOT NULL,
		first_seen DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_processed_events_id ON processed_events(event_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- domain.ArticleStore ---

func (s *SQLiteStore) UpsertArticle(ctx context.Context, art domain.Article) error {
	now := s.now()
	if art.PostedDate == "" {
		art.PostedDate = now.Format("2006-01-02")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (url, title, description, summary, posted_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   summary = excluded.summary,
		   posted_date = excluded.posted_date,
		   updated_at = excluded.updated_at`,
		art.URL, art.Title, art.Description, art.Summary, art.PostedDate, now, now,
	)
	return err
}

func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*domain.Article, error) {
	var art domain.Article
	var description, summary, postedDate sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT url, title, description, summary, posted_date, created_at, updated_at
		 FROM articles WHERE url = ?`, url,
	).Scan(&art.URL, &art.Title, &description, &summary, &postedDate, &art.CreatedAt, &art.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	art.Description = description.String
	art.Summary = summary.String
	art.PostedDate = postedDate.String
	return &art, nil
}

// --- domain.ConversationStore ---

// ActivateConversation tombstones any active state for (channel, threadTS)
// and inserts the new one in a single transaction, so readers never observe
// two active records for the same key.
func (s *SQLiteStore) ActivateConversation(ctx context.Context, channel, threadTS, articleURL, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_states SET active = 0
		 WHERE channel = ? AND thread_ts = ? AND active = 1`,
		channel, threadTS,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_states (channel, thread_ts, article_url, user_id, active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		channel, threadTS, articleURL, userID, s.now(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeactivateConversation(ctx context.Context, channel, threadTS string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversation_states SET active = 0
		 WHERE channel = ? AND thread_ts = ? AND active = 1`,
		channel, threadTS,
	)
	return err
}

func (s *SQLiteStore) ActiveConversation(ctx context.Context, channel, threadTS string) (*domain.ConversationState, error) {
	var st domain.ConversationState
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, channel, thread_ts, article_url, user_id, active, created_at
		 FROM conversation_states
		 WHERE channel = ? AND thread_ts = ? AND active = 1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		channel, threadTS,
	).Scan(&st.ID, &st.Channel, &st.ThreadTS, &st.ArticleURL, &st.UserID, &active, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Active = active == 1
	return &st, nil
}

// --- domain.InteractionLog ---

func (s *SQLiteStore) LogInteraction(ctx context.Context, entry domain.Interaction) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (kind, user_id, article_url, question, response, channel, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Kind, entry.UserID, entry.ArticleURL, entry.Question, entry.Response, entry.Channel, entry.CreatedAt,
	)
	return err
}

// --- domain.EventLedger (durable tier) ---

// MarkSeen relies on the UNIQUE constraint on event_id: INSERT OR IGNORE
// plus the affected-row count gives an atomic check-and-set even across
// process instances sharing the database file.
func (s *SQLiteStore) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	// Sweep first so an expired record cannot masquerade as a duplicate.
	s.sweepProcessedEvents(ctx)

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (event_id, first_seen) VALUES (?, ?)`,
		eventID, s.now(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *SQLiteStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM processed_events WHERE event_id = ? AND first_seen >= ?`,
		eventID, s.now().Add(-s.ledgerRetention),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// sweepProcessedEvents deletes records past retention. Called on every
// MarkSeen; a linear scan is fine at the expected event volume.
func (s *SQLiteStore) sweepProcessedEvents(ctx context.Context) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE first_seen < ?`,
		s.now().Add(-s.ledgerRetention),
	)
	if err != nil {
		s.logger.Warn("ledger sweep failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("swept expired ledger records", "count", n)
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
