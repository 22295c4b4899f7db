// Package ledger provides the fast in-process deduplication tier. Records
// live only as long as the process; deployments that cannot guarantee
// single-instance affinity should use the durable SQLite tier instead.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultRetention = 10 * time.Minute

// Memory is a mutex-guarded map ledger. The check and the write in MarkSeen
// happen under one lock, so concurrent deliveries of the same event ID
// resolve to exactly one first sighting.
type Memory struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type MemoryConfig struct {
	Retention time.Duration
	Logger    *slog.Logger
}

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Memory{
		seen:      make(map[string]time.Time),
		retention: cfg.Retention,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// MarkSeen records eventID and reports whether it was already recorded.
// Expired records are swept on every call; the ledger stays small because
// retention is short and event volume is low.
func (m *Memory) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.retention)
	swept := 0
	for id, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, id)
			swept++
		}
	}
	if swept > 0 {
		m.logger.Debug("swept expired ledger records", "count", swept)
	}

	if _, dup := m.seen[eventID]; dup {
		return true, nil
	}
	m.seen[eventID] = now
	return false, nil
}

func (m *Memory) Seen(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.seen[eventID]
	if !ok {
		return false, nil
	}
	return !at.Before(m.now().Add(-m.retention)), nil
}

// Len returns the number of live records, for tests.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
