package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxAttempts int           // Total attempts including the first (default: 3)
	BaseDelay   time.Duration // Base delay between attempts (default: 10ms)
	MaxDelay    time.Duration // Maximum delay between attempts (default: 250ms)
	Multiplier  float64       // Exponential backoff multiplier (default: 2.0)
	Jitter      bool          // Add random jitter to prevent thundering herd (default: true)
}

// DefaultConfig returns a retry configuration tuned for short database
// contention windows.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Do executes op up to cfg.MaxAttempts times, backing off between attempts.
// Only errors for which retryable returns true are retried; anything else
// is returned immediately. The last error is returned when the attempt
// budget runs out or the context is cancelled.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := calculateDelay(cfg, attempt)
		log.Debug().
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("Retrying after transient failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// calculateDelay calculates the delay for the next retry attempt using exponential backoff
func calculateDelay(cfg Config, attempt int) time.Duration {
	// Calculate exponential backoff: baseDelay * multiplier^attempt
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))

	// Apply maximum delay limit
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// Add jitter to prevent thundering herd problem
	if cfg.Jitter {
		// Add up to 10% random jitter
		jitterRange := delay * 0.1
		jitter := (rand.Float64() - 0.5) * 2 * jitterRange
		delay += jitter

		// Ensure delay is not negative
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}
