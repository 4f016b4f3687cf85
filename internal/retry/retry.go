// Package retry provides a small bounded-attempt helper, used for
// infrastructure setup such as the database connect. Business-level
// operations are deliberately never retried here; resubmission is the
// caller's call.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	Attempts int
	Delay    time.Duration
	Backoff  bool // linear backoff: attempt * Delay
}

// Do runs op up to cfg.Attempts times, sleeping between attempts and
// honoring ctx cancellation.
func Do(ctx context.Context, cfg Config, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		delay := cfg.Delay
		if cfg.Backoff {
			delay = time.Duration(attempt) * cfg.Delay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.Attempts, lastErr)
}
