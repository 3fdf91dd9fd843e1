package errors

import (
	"context"
	"time"
)

// RetryConfig configures retry behavior. Navigation uses a single retry
// with a fixed delay; everything else runs once.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retries (0 = no retries)
	Delay      time.Duration // Fixed delay before each retry
}

// NavigationRetryConfig returns the retry policy for page navigation.
func NavigationRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		Delay:      2 * time.Second,
	}
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// Retry executes fn up to 1+MaxRetries times, sleeping the fixed delay
// between attempts. It stops early on success, non-retryable errors, or
// context cancellation.
func Retry(ctx context.Context, cfg RetryConfig, operation, url string, fn RetryFunc) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewCancelled(url, operation)
			case <-time.After(cfg.Delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return NewCancelled(url, operation)
		}
		if !IsRetryable(err) {
			break
		}
	}

	return lastErr
}
