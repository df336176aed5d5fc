package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog appends audit events to an append-only table.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS audit_events (
//	    id           UUID PRIMARY KEY,
//	    event_type   TEXT NOT NULL,
//	    occurred_at  TIMESTAMPTZ NOT NULL,
//	    agent_id     TEXT,
//	    execution_id TEXT,
//	    operation_id TEXT,
//	    payload      JSONB NOT NULL
//	);
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a Postgres-backed sink.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// Append implements Log.
func (l *PostgresLog) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_events (id, event_type, occurred_at, agent_id, execution_id, operation_id, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, string(event.Type), event.Timestamp,
		event.AgentID, event.ExecutionID, event.OperationID, payload)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
