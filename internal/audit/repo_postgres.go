package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS call_audit_events (
	id          UUID PRIMARY KEY,
	type        TEXT NOT NULL,
	call_id     TEXT NOT NULL DEFAULT '',
	provider    TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	metadata    JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS call_audit_events_call_id_idx ON call_audit_events (call_id);
`

const insertEventSQL = `
INSERT INTO call_audit_events (id, type, call_id, provider, destination, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// PostgresRepo appends events to call_audit_events through database/sql
// (driver "pgx").
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// EnsureSchema creates the table and index when missing.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return errors.New("audit: db is nil")
	}
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("audit: create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	if r.db == nil {
		return errors.New("audit: db is nil")
	}
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID, string(e.Type), e.CallID, e.Provider, e.Destination, e.Message, metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
