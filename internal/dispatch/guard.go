package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"briefbot/internal/metrics"
)

// ErrAbandoned is returned by Guard.Run when the workflow outlived its
// deadline and was left to finish on its own.
var ErrAbandoned = errors.New("workflow abandoned at deadline")

// Guard runs workflows under a wall-clock deadline. A workflow that misses
// the deadline is abandoned, not killed: its goroutine keeps the (canceled)
// context and winds down on the next blocking call.
type Guard struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewGuard(timeout time.Duration, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{timeout: timeout, logger: logger}
}

// Run executes fn and waits at most the configured timeout for it to return.
func (g *Guard) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	metrics.WorkflowsInFlight.Inc()
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		defer metrics.WorkflowsInFlight.Dec()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		metrics.WorkflowLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.WorkflowFailures.Inc()
			g.logger.Error("workflow failed", "workflow", name, "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
		metrics.WorkflowTimeouts.Inc()
		g.logger.Error("workflow timed out", "workflow", name, "timeout", g.timeout)
		return ErrAbandoned
	}
}
