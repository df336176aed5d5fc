package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/engine/errs"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		BackoffBase:  2.0,
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errs.Network("https://x.test", errors.New("refused"))))
	assert.True(t, IsRetryable(errs.Timeout("https://x.test", time.Second)))
	assert.True(t, IsRetryable(errs.API(500, "https://x.test", 0)))
	assert.True(t, IsRetryable(errs.API(429, "https://x.test", 0)))
	assert.True(t, IsRetryable(errs.API(408, "https://x.test", 0)))
	assert.True(t, IsRetryable(errs.Retryable(errors.New("flaky"))))

	assert.False(t, IsRetryable(errs.API(404, "https://x.test", 0)))
	assert.False(t, IsRetryable(errs.API(400, "https://x.test", 0)))
	assert.False(t, IsRetryable(errs.RateLimit("denied", time.Second)))
	assert.False(t, IsRetryable(errs.Validation("bad args")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestDelay_ExponentialBackoff(t *testing.T) {
	p := New(Config{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffBase: 2.0})

	assert.Equal(t, time.Second, p.Delay(0, errs.API(500, "", 0)))
	assert.Equal(t, 2*time.Second, p.Delay(1, errs.API(500, "", 0)))
	assert.Equal(t, 4*time.Second, p.Delay(2, errs.API(500, "", 0)))
	assert.Equal(t, time.Minute, p.Delay(30, errs.API(500, "", 0)))
}

func TestDelay_HonoursRetryAfterFor429(t *testing.T) {
	p := New(Config{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffBase: 2.0})

	assert.Equal(t, 7*time.Second, p.Delay(0, errs.API(429, "", 7*time.Second)))
	// Other statuses keep the computed backoff
	assert.Equal(t, time.Second, p.Delay(0, errs.API(503, "", 7*time.Second)))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := New(fastConfig())
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errs.API(503, "https://x.test", 0)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	p := New(fastConfig())
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errs.Validation("bad")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	p := New(fastConfig())
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errs.API(500, "https://x.test", 0)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, errs.CategoryAPI, errs.CategoryOf(err))
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	p := New(Config{MaxRetries: 3, InitialDelay: time.Minute, MaxDelay: time.Minute, BackoffBase: 2.0})
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error {
		return errs.API(500, "https://x.test", 0)
	})
	require.Error(t, err)
	assert.Equal(t, errs.CategoryCancelled, errs.CategoryOf(err))
}
