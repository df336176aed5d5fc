// Package audit defines the append-only audit trail: event shapes, the
// sink interface, and the argument digest rules that keep credential
// material out of the log.
package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates audit event kinds.
type EventType string

const (
	EventExecutionStarted  EventType = "execution_started"
	EventExecutionFinished EventType = "execution_finished"
	EventOperationStarted  EventType = "operation_started"
	EventOperationFinished EventType = "operation_finished"
	EventCredentialUsed    EventType = "credential_used"
)

// Event is one audit record. Credential values never appear here;
// ArgsDigest is pre-sanitized.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	AgentID       string         `json:"agent_id,omitempty"`
	ExecutionID   string         `json:"execution_id,omitempty"`
	WorkflowHash  string         `json:"workflow_hash,omitempty"`
	OperationID   string         `json:"operation_id,omitempty"`
	OperationKind string         `json:"operation_kind,omitempty"`
	Status        string         `json:"status,omitempty"`
	DurationMs    int64          `json:"duration_ms,omitempty"`
	CredentialID  string         `json:"credential_id,omitempty"`
	ArgsDigest    map[string]any `json:"args_digest,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// Log is the append-only sink. Append is atomic and preserves
// per-execution event order. Implementations may persist however they
// like; the engine never reads events back.
type Log interface {
	Append(ctx context.Context, event Event) error
}

var sensitiveKeyFragments = []string{"password", "token", "secret", "authorization", "auth", "key", "credential"}

const maxDigestString = 200

// Digest produces a sanitized copy of operation arguments for audit
// events: values under Authorization-like keys are replaced with a
// placeholder, credentialRef markers collapse to their ID, and long
// strings are truncated.
func Digest(args map[string]any) map[string]any {
	out, _ := digestValue(args).(map[string]any)
	return out
}

func digestValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := v["credentialRef"].(map[string]any); ok && len(v) == 1 {
			if id, ok := ref["id"].(string); ok {
				return map[string]any{"credentialRef": id}
			}
		}
		out := make(map[string]any, len(v))
		for key, val := range v {
			if isSensitiveKey(key) {
				out[key] = "[REDACTED]"
				continue
			}
			out[key] = digestValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = digestValue(val)
		}
		return out
	case string:
		if len(v) > maxDigestString {
			return v[:maxDigestString] + "..."
		}
		return v
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// MemoryLog is a bounded in-memory sink for tests and single-node
// deployments.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewMemoryLog creates a memory sink keeping at most max events; max
// <= 0 means unbounded.
func NewMemoryLog(max int) *MemoryLog {
	return &MemoryLog{max: max}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if l.max > 0 && len(l.events) > l.max {
		l.events = l.events[len(l.events)-l.max:]
	}
	return nil
}

// Events returns a copy of the recorded events.
func (l *MemoryLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// EventsOfType filters recorded events by type.
func (l *MemoryLog) EventsOfType(eventType EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
