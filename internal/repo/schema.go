package repo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schema is applied idempotently at startup. The service owns these tables;
// the scheduling system's data never lands here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id                  BIGSERIAL PRIMARY KEY,
		appointment_id      BIGINT NOT NULL,
		patient_name        TEXT NOT NULL,
		phone               TEXT NOT NULL,
		body                TEXT NOT NULL,
		template_name       TEXT,
		status              TEXT NOT NULL DEFAULT 'pending',
		provider_message_id TEXT,
		last_error          TEXT,
		attempt_count       INT NOT NULL DEFAULT 0,
		appointment_date    TEXT NOT NULL,
		doctor              TEXT NOT NULL DEFAULT '',
		site                TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at             TIMESTAMPTZ,
		delivered_at        TIMESTAMPTZ,
		read_at             TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_appointment
		ON messages (appointment_id, appointment_date)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_provider_id
		ON messages (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_status
		ON messages (status)`,
	`CREATE TABLE IF NOT EXISTS executions (
		id                 BIGSERIAL PRIMARY KEY,
		kind               TEXT NOT NULL,
		appointments_seen  INT NOT NULL DEFAULT 0,
		messages_attempted INT NOT NULL DEFAULT 0,
		succeeded          INT NOT NULL DEFAULT 0,
		failed             INT NOT NULL DEFAULT 0,
		duration_ms        BIGINT NOT NULL DEFAULT 0,
		error              TEXT,
		started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at        TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id                  BIGSERIAL PRIMARY KEY,
		event_type          TEXT NOT NULL,
		provider_message_id TEXT,
		phone               TEXT,
		status              TEXT,
		provider_timestamp  TEXT,
		payload             JSONB,
		processed           BOOLEAN NOT NULL DEFAULT false,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_events_provider_id
		ON webhook_events (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_events_processed
		ON webhook_events (processed)`,
}

// EnsureSchema creates the service's tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repo: ensure schema: %w", err)
		}
	}
	slog.Info("database schema ensured")
	return nil
}
