// Package retry implements the retry policy: error classification,
// exponential backoff with jitter, and Retry-After handling for 429s.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/lyzr/a2e/engine/errs"
)

// Config mirrors the retry section of the configuration surface.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	BackoffBase  float64
	Jitter       bool
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		BackoffBase:  2.0,
		Jitter:       true,
	}
}

// Policy applies retries around retryable operations.
type Policy struct {
	config Config
}

// New creates a policy from config.
func New(config Config) *Policy {
	if config.BackoffBase < 1 {
		config.BackoffBase = 2.0
	}
	return &Policy{config: config}
}

// IsRetryable classifies an error. NetworkError, TimeoutError,
// ApiError with status 408/429/5xx and explicit RetryableError markers
// are retryable. Everything else, including RateLimitError, is
// terminal for this layer.
func IsRetryable(err error) bool {
	e := errs.From(err)
	switch e.Category {
	case errs.CategoryNetwork, errs.CategoryTimeout:
		return true
	case errs.CategoryAPI:
		return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return e.Type == "RetryableError"
	}
}

// Delay computes the backoff before retry attempt (0-indexed). A
// Retry-After signal from a 429 response takes precedence over the
// computed backoff.
func (p *Policy) Delay(attempt int, lastErr error) time.Duration {
	if e := errs.From(lastErr); e.StatusCode == 429 && e.RetryAfter > 0 {
		return e.RetryAfter
	}

	delay := time.Duration(float64(p.config.InitialDelay) * math.Pow(p.config.BackoffBase, float64(attempt)))
	if delay > p.config.MaxDelay || delay <= 0 {
		delay = p.config.MaxDelay
	}
	if p.config.Jitter {
		delay += time.Duration(rand.Float64() * float64(delay) * 0.1)
	}
	return delay
}

// Do runs fn, retrying retryable failures up to MaxRetries times. The
// backoff sleep honours ctx cancellation. Only the final failure is
// surfaced.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt >= p.config.MaxRetries {
			return lastErr
		}

		timer := time.NewTimer(p.Delay(attempt, lastErr))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errs.Cancelled(ctx.Err())
		case <-timer.C:
		}
	}
}
