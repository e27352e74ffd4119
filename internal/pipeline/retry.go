package pipeline

import (
	"context"
	"time"
)

// retryWithBackoff retries fn with exponential backoff. Used at the
// persistence boundary: storage failures get a bounded number of attempts,
// after which the document is marked failed and the batch continues.
func retryWithBackoff(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
