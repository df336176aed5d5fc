package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultStream is the Redis stream audit events are appended to.
const defaultStream = "a2e.audit.events"

// RedisLog appends audit events to a Redis stream. Stream appends are
// atomic, which satisfies the per-execution ordering guarantee.
type RedisLog struct {
	redis  *redis.Client
	stream string
}

// NewRedisLog creates a Redis-backed sink. stream may be empty to use
// the default.
func NewRedisLog(redisClient *redis.Client, stream string) *RedisLog {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisLog{redis: redisClient, stream: stream}
}

// Append implements Log.
func (l *RedisLog) Append(ctx context.Context, event Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	err = l.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"event": string(eventJSON),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
