package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// backoffDelays is the delay schedule between attempts; the last entry repeats
var backoffDelays = []time.Duration{
	100 * time.Millisecond,
	400 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

// RetryWithBackoff retries op while it fails with ErrConnectionUnavailable.
// The pool itself never retries; this is for callers such as process bootstrap.
func RetryWithBackoff(ctx context.Context, maxRetries int, op func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = op()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		if attempt == maxRetries-1 {
			break
		}

		delay := backoffDelays[min(attempt, len(backoffDelays)-1)]
		log.Printf("Retrying after error (attempt=%d, delay=%s): %v", attempt+1, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", maxRetries, err)
}

// shouldRetry only retries connectivity failures; a ping timeout counts as one
func shouldRetry(err error) bool {
	return errors.Is(err, ErrConnectionUnavailable)
}
