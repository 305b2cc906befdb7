package cache

import (
	"context"
	"time"
)

// SentCache is a fast-path lookup in front of the database idempotence
// query: a hit means a reminder already went out for the (appointment id,
// appointment date) pair. Misses always fall through to the store, so the
// cache may be disabled or lossy without affecting correctness.
type SentCache interface {
	StoreSent(ctx context.Context, appointmentID int64, appointmentDate, providerMsgID string, sentAt time.Time) error
	WasSent(ctx context.Context, appointmentID int64, appointmentDate string) (bool, error)
}

// Noop is the disabled cache: never hits, never fails.
type Noop struct{}

func (Noop) StoreSent(context.Context, int64, string, string, time.Time) error { return nil }

func (Noop) WasSent(context.Context, int64, string) (bool, error) { return false, nil }
