package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

// RetryableFunc defines a function that can be retried.
type RetryableFunc func() error

// Config holds the configuration for retrying operations.
type Config struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	Logger      logger.Logger
}

// Do retries fn up to MaxAttempts times, sleeping per the backoff strategy
// between attempts. Context cancellation aborts both execution and backoff.
func Do(ctx context.Context, fn RetryableFunc, cfg *Config) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := cfg.Backoff.NextBackoff(attempt)

		cfg.Logger.Warn("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", cfg.MaxAttempts,
			"backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", cfg.MaxAttempts, lastErr)
}
