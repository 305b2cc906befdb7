package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinicalaser/whatsapp-reminders/internal/model"
)

// ErrInvalidTransition is returned when a lifecycle update matches no row,
// i.e. the message is not in a state the transition is allowed from.
var ErrInvalidTransition = errors.New("repo: no row allowed this status transition")

// Postgres implements Store on database/sql (pgx stdlib driver). Every
// write commits immediately; there is no batching.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

func (r *Postgres) Insert(ctx context.Context, m *model.ReminderMessage) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (
			appointment_id, patient_name, phone, body, template_name,
			status, appointment_date, doctor, site
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8)
		RETURNING id
	`,
		m.AppointmentID,
		m.PatientName,
		m.Phone,
		m.Body,
		m.TemplateName,
		m.AppointmentDate,
		m.Doctor,
		m.Site,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("repo: insert message: %w", err)
	}
	return id, nil
}

func (r *Postgres) MarkSent(ctx context.Context, id int64, providerMsgID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'sent',
		    provider_message_id = $2,
		    sent_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, providerMsgID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Postgres) MarkFailed(ctx context.Context, id int64, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'failed',
		    last_error = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Advance applies delivered/read transitions from webhook events. The
// lifecycle gate rejects statuses a sent message can never move to; the
// WHERE clause then only matches rows the transition is allowed from, so a
// duplicate or out-of-order event matches nothing and returns false. The
// timestamp columns are set exactly once.
func (r *Postgres) Advance(ctx context.Context, providerMsgID string, status model.MessageStatus) (bool, error) {
	if !model.MessageSent.CanTransitionTo(status) {
		return false, fmt.Errorf("repo: status %q cannot be advanced from a webhook", status)
	}

	var query string
	if status == model.MessageDelivered {
		query = `
			UPDATE messages
			SET status = 'delivered', delivered_at = now(), updated_at = now()
			WHERE provider_message_id = $1 AND status = 'sent' AND delivered_at IS NULL`
	} else {
		query = `
			UPDATE messages
			SET status = 'read', read_at = now(), updated_at = now()
			WHERE provider_message_id = $1 AND status IN ('sent', 'delivered') AND read_at IS NULL`
	}

	res, err := r.db.ExecContext(ctx, query, providerMsgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Postgres) AlreadySent(ctx context.Context, appointmentID int64, appointmentDate string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE appointment_id = $1
			  AND appointment_date = $2
			  AND status IN ('sent', 'delivered', 'read')
		)
	`, appointmentID, appointmentDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repo: idempotence lookup: %w", err)
	}
	return exists, nil
}

// StatsToday aggregates the counters for localDate, the caller's "today"
// in the clinic timezone. CURRENT_DATE would use the database server's
// timezone instead, which may disagree around midnight.
func (r *Postgres) StatsToday(ctx context.Context, localDate string) (model.TodayStats, error) {
	var s model.TodayStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered', 'read')),
			COUNT(*) FILTER (WHERE status IN ('delivered', 'read')),
			COUNT(*) FILTER (WHERE status = 'read'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM messages
		WHERE created_at::date = $1::date
	`, localDate).Scan(&s.TotalSent, &s.TotalDelivered, &s.TotalRead, &s.TotalFailed)
	if err != nil {
		return model.TodayStats{}, fmt.Errorf("repo: stats query: %w", err)
	}

	if s.TotalSent > 0 {
		s.DeliveryRate = float64(s.TotalDelivered) / float64(s.TotalSent) * 100
		s.ReadRate = float64(s.TotalRead) / float64(s.TotalSent) * 100
	}
	return s, nil
}

func (r *Postgres) StartExecution(ctx context.Context, kind model.RunKind) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO executions (kind) VALUES ($1) RETURNING id
	`, string(kind)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("repo: start execution: %w", err)
	}
	return id, nil
}

func (r *Postgres) FinishExecution(ctx context.Context, id int64, e model.Execution) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE executions
		SET appointments_seen = $2,
		    messages_attempted = $3,
		    succeeded = $4,
		    failed = $5,
		    duration_ms = $6,
		    error = $7,
		    finished_at = now()
		WHERE id = $1 AND finished_at IS NULL
	`,
		id,
		e.AppointmentsSeen,
		e.MessagesAttempted,
		e.Succeeded,
		e.Failed,
		e.DurationMS,
		e.Error,
	)
	return err
}

func (r *Postgres) InsertEvent(ctx context.Context, ev WebhookEvent) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (
			event_type, provider_message_id, phone, status, provider_timestamp, payload
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		ev.EventType,
		nullable(ev.ProviderMsgID),
		nullable(ev.Phone),
		nullable(ev.Status),
		nullable(ev.ProviderTime),
		ev.Payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("repo: insert webhook event: %w", err)
	}
	return id, nil
}

func (r *Postgres) MarkEventProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed = true WHERE id = $1
	`, id)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
