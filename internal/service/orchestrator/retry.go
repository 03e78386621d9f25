package orchestrator

import (
	"context"
	"time"
)

// WithRetries runs op until it reports success or maxAttempts calls have
// been made. Between attempts it waits delay times the attempt number;
// cancelling ctx stops the wait. It returns the number of calls made.
func WithRetries(ctx context.Context, maxAttempts int, delay time.Duration, op func(ctx context.Context, attempt int) bool) (int, bool) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if op(ctx, attempt) {
			return attempt, true
		}
		if attempt == maxAttempts {
			return attempt, false
		}

		if ctx.Err() != nil {
			return attempt, false
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return attempt, false
			case <-time.After(time.Duration(attempt) * delay):
			}
		}
	}
	return maxAttempts, false
}
