package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS leads (
		unique_id TEXT PRIMARY KEY,
		name TEXT,
		phone TEXT,
		email TEXT,
		address TEXT,
		status TEXT,
		fecha_planificada TIMESTAMPTZ,
		intentos INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS leads_status_idx ON leads (status, fecha_planificada)`,
	`CREATE TABLE IF NOT EXISTS call_logs (
		id BIGSERIAL PRIMARY KEY,
		vapi_call_id TEXT,
		lead_name TEXT,
		phone_called TEXT,
		call_time TIMESTAMPTZ,
		ended_reason TEXT,
		duration_seconds INTEGER,
		evaluation TEXT,
		transcript TEXT,
		recording_url TEXT,
		notes TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS call_logs_vapi_call_id_idx ON call_logs (vapi_call_id)`,
	`CREATE INDEX IF NOT EXISTS call_logs_phone_idx ON call_logs (phone_called, call_time DESC)`,
}

// EnsureSchema creates the lead and call-log tables when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}
