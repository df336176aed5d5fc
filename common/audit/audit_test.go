package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_RedactsSensitiveKeys(t *testing.T) {
	digest := Digest(map[string]any{
		"url": "https://api.example.com",
		"headers": map[string]any{
			"Authorization": "Bearer plaintext",
			"X-Api-Key":     "abc123",
			"Accept":        "application/json",
		},
		"password": "hunter2",
	})

	headers := digest["headers"].(map[string]any)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "[REDACTED]", headers["X-Api-Key"])
	assert.Equal(t, "application/json", headers["Accept"])
	assert.Equal(t, "[REDACTED]", digest["password"])
	assert.Equal(t, "https://api.example.com", digest["url"])
}

func TestDigest_CollapsesCredentialRefs(t *testing.T) {
	digest := Digest(map[string]any{
		"body": map[string]any{
			"credentialRef": map[string]any{"id": "crm-token"},
		},
	})
	assert.Equal(t, map[string]any{"credentialRef": "crm-token"}, digest["body"])
}

func TestDigest_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 500)
	digest := Digest(map[string]any{"note": long})

	note := digest["note"].(string)
	assert.Len(t, note, 203)
	assert.True(t, strings.HasSuffix(note, "..."))
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventOperationStarted)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventOperationStarted, e.Type)
	assert.False(t, e.Timestamp.IsZero())
}

func TestMemoryLog_BoundedRing(t *testing.T) {
	log := NewMemoryLog(2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := NewEvent(EventOperationFinished)
		e.OperationID = string(rune('a' + i))
		require.NoError(t, log.Append(ctx, e))
	}

	events := log.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].OperationID)
	assert.Equal(t, "c", events[1].OperationID)
}

func TestMemoryLog_EventsOfType(t *testing.T) {
	log := NewMemoryLog(0)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, NewEvent(EventExecutionStarted)))
	require.NoError(t, log.Append(ctx, NewEvent(EventOperationStarted)))
	require.NoError(t, log.Append(ctx, NewEvent(EventExecutionFinished)))

	assert.Len(t, log.EventsOfType(EventExecutionStarted), 1)
	assert.Len(t, log.EventsOfType(EventCredentialUsed), 0)
}
