package repo

import (
	"context"
	"time"

	"github.com/clinicalaser/whatsapp-reminders/internal/model"
)

// MessageStore persists reminder send attempts and their lifecycle.
type MessageStore interface {
	// Insert records a new attempt in pending state and returns its id.
	Insert(ctx context.Context, m *model.ReminderMessage) (int64, error)

	// MarkSent moves a pending attempt to sent, recording the provider
	// message id and the sent timestamp.
	MarkSent(ctx context.Context, id int64, providerMsgID string) error

	// MarkFailed moves a pending attempt to failed, recording the error
	// text and incrementing the attempt counter.
	MarkFailed(ctx context.Context, id int64, reason string) error

	// Advance applies a webhook-driven forward transition (delivered or
	// read) looked up by provider message id. Returns false when no row
	// allowed the transition.
	Advance(ctx context.Context, providerMsgID string, status model.MessageStatus) (bool, error)

	// AlreadySent reports whether a sent-or-further attempt exists for
	// the (appointment id, appointment date) pair.
	AlreadySent(ctx context.Context, appointmentID int64, appointmentDate string) (bool, error)

	// StatsToday aggregates the counters and rates for localDate, the
	// caller's current date in the clinic timezone.
	StatsToday(ctx context.Context, localDate string) (model.TodayStats, error)
}

// ExecutionStore persists run-level execution records.
type ExecutionStore interface {
	// StartExecution creates the record at job start.
	StartExecution(ctx context.Context, kind model.RunKind) (int64, error)

	// FinishExecution finalizes the record exactly once; a second call
	// for the same id is a no-op.
	FinishExecution(ctx context.Context, id int64, e model.Execution) error
}

// WebhookEvent is a raw inbound delivery-status payload, stored verbatim.
type WebhookEvent struct {
	ID            int64
	EventType     string
	ProviderMsgID string
	Phone         string
	Status        string
	ProviderTime  string
	Payload       []byte
	Processed     bool
	CreatedAt     time.Time
}

// WebhookStore persists inbound delivery-status events.
type WebhookStore interface {
	InsertEvent(ctx context.Context, ev WebhookEvent) (int64, error)
	MarkEventProcessed(ctx context.Context, id int64) error
}

// Store is the full persistence surface wired in main.
type Store interface {
	MessageStore
	ExecutionStore
	WebhookStore
}
