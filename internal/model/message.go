package model

import "time"

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// statusRank orders the forward-only lifecycle. failed is terminal and only
// reachable from pending.
var statusRank = map[MessageStatus]int{
	MessagePending:   0,
	MessageSent:      1,
	MessageDelivered: 2,
	MessageRead:      3,
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if next == MessageFailed {
		return s == MessagePending
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to == from+1 || (s == MessageSent && next == MessageRead)
}

// ReminderMessage is one send attempt for one appointment, owned by this
// service. Appointment date, doctor and site are duplicated here so the
// idempotence lookup and reporting never join back to the source system.
type ReminderMessage struct {
	ID              int64
	AppointmentID   int64
	PatientName     string
	Phone           string
	Body            string
	TemplateName    *string
	Status          MessageStatus
	ProviderMsgID   *string
	LastError       *string
	AttemptCount    int
	AppointmentDate string
	Doctor          string
	Site            string
	CreatedAt       time.Time
	SentAt          *time.Time
	DeliveredAt     *time.Time
	ReadAt          *time.Time
	UpdatedAt       time.Time
}

type RunKind string

const (
	RunScheduled RunKind = "scheduled"
	RunManual    RunKind = "manual"
)

// Execution summarizes one full job run. Created at job start, finalized
// exactly once at job end. A row with a nil FinishedAt marks a crashed run.
type Execution struct {
	ID                int64
	Kind              RunKind
	AppointmentsSeen  int
	MessagesAttempted int
	Succeeded         int
	Failed            int
	DurationMS        int64
	Error             *string
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// TodayStats are the aggregate counters served by the statistics endpoint.
// Rates are percentages of total sent; read rows count toward delivered.
type TodayStats struct {
	TotalSent      int     `json:"total_enviados"`
	TotalDelivered int     `json:"total_entregados"`
	TotalRead      int     `json:"total_leidos"`
	TotalFailed    int     `json:"total_fallidos"`
	DeliveryRate   float64 `json:"tasa_entrega"`
	ReadRate       float64 `json:"tasa_lectura"`
}
