package ai

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// maxAttempts bounds total tries per generation call, first attempt included.
const maxAttempts = 3

// sendWithRetry posts the request, retrying transient failures: network
// errors, 5xx responses, and 429 rate limits. Between attempts it sleeps a
// doubling base plus jitter, honoring context cancellation. Non-transient
// responses are returned to the caller untouched.
func (g *Gemini) sendWithRetry(ctx context.Context, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := retryBackoff(attempt)
			g.logger.Warn("retrying model request",
				"attempt", attempt, "of", maxAttempts, "backoff", wait, "reason", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("model request failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryBackoff returns the sleep before the given attempt: 1s, 2s, ... with
// up to 50% jitter on top.
func retryBackoff(attempt int) time.Duration {
	base := time.Second << (attempt - 2)
	return base + time.Duration(rand.Int63n(int64(base/2+1)))
}
