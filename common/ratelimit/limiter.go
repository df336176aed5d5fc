// Package ratelimit implements per-agent sliding-window rate limiting
// with per-operation-kind sub-limits and an optional throttle hook.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// apiCallKind is the operation kind with dedicated sub-limits.
const apiCallKind = "ApiCall"

// staleAfter is how long an idle agent record survives before reaping.
const staleAfter = 24 * time.Hour

// Limits holds the sliding-window limits for one agent.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	APICallsPerMinute int
	APICallsPerHour   int
}

// Result contains the outcome of a rate limit check
type Result struct {
	Allowed    bool
	Current    int
	Limit      int
	Scope      string // which window denied, e.g. "requests_per_minute"
	RetryAfter time.Duration
}

type record struct {
	requests []time.Time
	apiCalls []time.Time
	lastSeen time.Time
}

// Limiter tracks per-agent sliding windows. All methods are safe for
// concurrent use.
type Limiter struct {
	mu        sync.Mutex
	defaults  Limits
	overrides map[string]Limits
	records   map[string]*record
	throttle  *rate.Limiter
	logger    Logger

	now func() time.Time
}

// New creates a limiter. throttleDelay > 0 enables the throttle hook,
// which paces granted slots by the configured delay.
func New(defaults Limits, throttleDelay time.Duration, logger Logger) *Limiter {
	l := &Limiter{
		defaults:  defaults,
		overrides: make(map[string]Limits),
		records:   make(map[string]*record),
		logger:    logger,
		now:       time.Now,
	}
	if throttleDelay > 0 {
		l.throttle = rate.NewLimiter(rate.Every(throttleDelay), 1)
	}
	return l
}

// SetAgentLimits installs a per-agent override replacing the defaults.
func (l *Limiter) SetAgentLimits(agentID string, limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[agentID] = limits
	l.logger.Info("custom rate limits installed", "agent_id", agentID)
}

// Acquire requests an execution slot for (agentID, operationKind). A
// denied result records nothing, so denial has no observable side
// effects. When the throttle hook is enabled, a granted slot may pause
// briefly before returning; the wait honours ctx cancellation.
func (l *Limiter) Acquire(ctx context.Context, agentID, operationKind string) (*Result, error) {
	l.mu.Lock()
	limits := l.defaults
	if override, ok := l.overrides[agentID]; ok {
		limits = override
	}

	rec, ok := l.records[agentID]
	if !ok {
		rec = &record{}
		l.records[agentID] = rec
	}

	now := l.now()
	rec.evict(now)

	if res := denied(rec.requests, now, limits.RequestsPerMinute, time.Minute, "requests_per_minute"); res != nil {
		l.mu.Unlock()
		l.warnDenied(agentID, res)
		return res, nil
	}
	if res := denied(rec.requests, now, limits.RequestsPerHour, time.Hour, "requests_per_hour"); res != nil {
		l.mu.Unlock()
		l.warnDenied(agentID, res)
		return res, nil
	}
	if res := denied(rec.requests, now, limits.RequestsPerDay, 24*time.Hour, "requests_per_day"); res != nil {
		l.mu.Unlock()
		l.warnDenied(agentID, res)
		return res, nil
	}
	if operationKind == apiCallKind {
		if res := denied(rec.apiCalls, now, limits.APICallsPerMinute, time.Minute, "api_calls_per_minute"); res != nil {
			l.mu.Unlock()
			l.warnDenied(agentID, res)
			return res, nil
		}
		if res := denied(rec.apiCalls, now, limits.APICallsPerHour, time.Hour, "api_calls_per_hour"); res != nil {
			l.mu.Unlock()
			l.warnDenied(agentID, res)
			return res, nil
		}
	}

	rec.requests = append(rec.requests, now)
	if operationKind == apiCallKind {
		rec.apiCalls = append(rec.apiCalls, now)
	}
	rec.lastSeen = now
	current := len(rec.requests)
	l.mu.Unlock()

	if l.throttle != nil {
		if err := l.throttle.Wait(ctx); err != nil {
			return nil, fmt.Errorf("throttle wait: %w", err)
		}
	}

	return &Result{Allowed: true, Current: current}, nil
}

// denied checks one window and returns a denial result, or nil when
// the window has room. limit <= 0 disables the window.
func denied(stamps []time.Time, now time.Time, limit int, window time.Duration, scope string) *Result {
	if limit <= 0 {
		return nil
	}
	cutoff := now.Add(-window)
	count := 0
	for i := len(stamps) - 1; i >= 0; i-- {
		if stamps[i].After(cutoff) {
			count++
		} else {
			break
		}
	}
	if count < limit {
		return nil
	}

	// The slot frees when the limit-th most recent stamp leaves the window
	oldest := stamps[len(stamps)-limit]
	retryAfter := window - now.Sub(oldest)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Result{
		Allowed:    false,
		Current:    count,
		Limit:      limit,
		Scope:      scope,
		RetryAfter: retryAfter,
	}
}

func (l *Limiter) warnDenied(agentID string, res *Result) {
	l.logger.Warn("rate limit exceeded",
		"agent_id", agentID,
		"scope", res.Scope,
		"current", res.Current,
		"limit", res.Limit,
		"retry_after", res.RetryAfter)
}

// evict drops timestamps older than the widest window.
func (r *record) evict(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	r.requests = trim(r.requests, cutoff)
	r.apiCalls = trim(r.apiCalls, cutoff)
}

func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[idx:]...)
}

// ReapStale removes agent records with no activity for a day.
func (l *Limiter) ReapStale() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-staleAfter)
	reaped := 0
	for agentID, rec := range l.records {
		if rec.lastSeen.Before(cutoff) {
			delete(l.records, agentID)
			reaped++
		}
	}
	if reaped > 0 {
		l.logger.Debug("reaped stale rate limit records", "count", reaped)
	}
	return reaped
}

// StartReaper reaps stale records on an interval until ctx is done.
func (l *Limiter) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.ReapStale()
			}
		}
	}()
}
