package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls Do.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Do executes fn with exponential backoff between attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for i := 0; i < cfg.MaxRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if i < cfg.MaxRetries-1 {
			delay := time.Duration(1<<uint(i)) * cfg.RetryDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Schedule is a fixed backoff schedule indexed by attempt number.
// Attempts beyond the schedule length clamp to the last entry.
type Schedule []time.Duration

// Delay returns the backoff for a 1-based attempt count. A nil or
// empty schedule returns zero.
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s) {
		attempt = len(s)
	}
	return s[attempt-1]
}

// Wait sleeps for the scheduled delay of the given attempt, returning
// early if the context is done.
func (s Schedule) Wait(ctx context.Context, attempt int) error {
	delay := s.Delay(attempt)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
