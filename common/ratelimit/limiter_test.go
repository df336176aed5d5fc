package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/a2e/common/logger"
)

func newTestLimiter(limits Limits) (*Limiter, *time.Time) {
	l := New(limits, 0, logger.Discard())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAcquire_DeniesAtLimit(t *testing.T) {
	l, _ := newTestLimiter(Limits{RequestsPerMinute: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Acquire(ctx, "agent-1", "Wait")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Acquire(ctx, "agent-1", "Wait")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "requests_per_minute", res.Scope)
	assert.Equal(t, 2, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestAcquire_DenialRecordsNothing(t *testing.T) {
	l, now := newTestLimiter(Limits{RequestsPerMinute: 1})
	ctx := context.Background()

	res, err := l.Acquire(ctx, "agent-1", "Wait")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	for i := 0; i < 5; i++ {
		res, err = l.Acquire(ctx, "agent-1", "Wait")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}

	// Only the single granted slot occupies the window; once it ages
	// out, the next acquire succeeds.
	*now = now.Add(61 * time.Second)
	res, err = l.Acquire(ctx, "agent-1", "Wait")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAcquire_APICallSubLimit(t *testing.T) {
	l, _ := newTestLimiter(Limits{RequestsPerMinute: 100, APICallsPerMinute: 1})
	ctx := context.Background()

	res, err := l.Acquire(ctx, "agent-1", "ApiCall")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Acquire(ctx, "agent-1", "ApiCall")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "api_calls_per_minute", res.Scope)

	// Non-ApiCall kinds are not charged against the sub-limit
	res, err = l.Acquire(ctx, "agent-1", "FilterData")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAcquire_AgentsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Limits{RequestsPerMinute: 1})
	ctx := context.Background()

	res, _ := l.Acquire(ctx, "agent-1", "Wait")
	require.True(t, res.Allowed)
	res, _ = l.Acquire(ctx, "agent-1", "Wait")
	require.False(t, res.Allowed)

	res, _ = l.Acquire(ctx, "agent-2", "Wait")
	assert.True(t, res.Allowed)
}

func TestSetAgentLimits_OverridesDefaults(t *testing.T) {
	l, _ := newTestLimiter(Limits{RequestsPerMinute: 1})
	ctx := context.Background()

	l.SetAgentLimits("vip", Limits{RequestsPerMinute: 3})
	for i := 0; i < 3; i++ {
		res, err := l.Acquire(ctx, "vip", "Wait")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}
	res, _ := l.Acquire(ctx, "vip", "Wait")
	assert.False(t, res.Allowed)
}

func TestReapStale(t *testing.T) {
	l, now := newTestLimiter(Limits{RequestsPerMinute: 10})
	ctx := context.Background()

	_, err := l.Acquire(ctx, "agent-1", "Wait")
	require.NoError(t, err)

	*now = now.Add(25 * time.Hour)
	assert.Equal(t, 1, l.ReapStale())
	assert.Equal(t, 0, l.ReapStale())
}
