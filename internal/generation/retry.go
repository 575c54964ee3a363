package generation

import (
	"context"
	"time"

	"tunesmith/internal/infra"
)

// WithRetry runs op with bounded exponential backoff: attempts tries, the
// delay doubling from initial between each. Context cancellation stops the
// loop early. The final error is returned so callers can decide whether to
// surface or abandon it.
func WithRetry(ctx context.Context, attempts int, initial time.Duration, logger infra.Logger, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := initial
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("generation: processing failed, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
