package publish

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryConfig bounds the retry loop. The delay after failed attempt k is BaseDelay * 2^k.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig allows five attempts with delays of 2, 4, 8 and 16 seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: time.Second}
}

// RetryResult reports what the loop did.
type RetryResult struct {
	Attempts  int
	Delays    []time.Duration
	LastError error
	Success   bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffDelay returns the wait after the given failed attempt (1-based).
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

// Retry runs op until it succeeds or MaxAttempts is reached.
func Retry(ctx context.Context, cfg RetryConfig, sleep Sleeper, logger *slog.Logger, op func(attempt int) error) RetryResult {
	if sleep == nil {
		sleep = SleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	attempts := max(cfg.MaxAttempts, 1)

	var result RetryResult
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt

		err := op(attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			if attempt > 1 {
				logger.Info("Operation succeeded after retries", "attempts", attempt)
			}
			return result
		}
		result.LastError = err

		if attempt == attempts {
			logger.Error("Operation failed, no attempts left", "attempts", attempt, "error", err)
			return result
		}

		delay := BackoffDelay(cfg.BaseDelay, attempt)
		logger.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		result.Delays = append(result.Delays, delay)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			result.LastError = errors.Join(err, sleepErr)
			return result
		}
	}
	return result
}
