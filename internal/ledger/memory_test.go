package ledger

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestMarkSeen_FirstAndDuplicate(t *testing.T) {
	m := NewMemory(MemoryConfig{Logger: testLogger()})
	ctx := context.Background()

	dup, err := m.MarkSeen(ctx, "100.0_U1_reaction_added")
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Error("first sighting should not be a duplicate")
	}

	dup, err = m.MarkSeen(ctx, "100.0_U1_reaction_added")
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Error("second sighting should be a duplicate")
	}
}

func TestSeen(t *testing.T) {
	m := NewMemory(MemoryConfig{Logger: testLogger()})
	ctx := context.Background()

	seen, err := m.Seen(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("unmarked event should not be seen")
	}

	m.MarkSeen(ctx, "ev1")
	seen, _ = m.Seen(ctx, "ev1")
	if !seen {
		t.Error("marked event should be seen")
	}
}

func TestMarkSeen_SweepsExpired(t *testing.T) {
	m := NewMemory(MemoryConfig{Retention: 10 * time.Minute, Logger: testLogger()})
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	m.MarkSeen(ctx, "old")

	// Advance past the retention window; the next MarkSeen purges "old".
	m.now = func() time.Time { return base.Add(11 * time.Minute) }
	dup, _ := m.MarkSeen(ctx, "new")
	if dup {
		t.Error("new event should not be a duplicate")
	}
	if m.Len() != 1 {
		t.Errorf("expected only the new record after sweep, got %d", m.Len())
	}

	// The expired ID is processable again.
	dup, _ = m.MarkSeen(ctx, "old")
	if dup {
		t.Error("expired event should be reprocessed")
	}
}

func TestSeen_ExpiredRecord(t *testing.T) {
	m := NewMemory(MemoryConfig{Retention: time.Minute, Logger: testLogger()})
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }
	m.MarkSeen(ctx, "ev")

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	seen, _ := m.Seen(ctx, "ev")
	if seen {
		t.Error("record past retention should not count as seen")
	}
}

func TestMarkSeen_ConcurrentSameID(t *testing.T) {
	m := NewMemory(MemoryConfig{Logger: testLogger()})
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	firsts := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup, err := m.MarkSeen(ctx, "same-id")
			if err != nil {
				t.Error(err)
				return
			}
			if !dup {
				firsts <- true
			}
		}()
	}
	wg.Wait()
	close(firsts)

	count := 0
	for range firsts {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one first sighting, got %d", count)
	}
}
