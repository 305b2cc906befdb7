// Package job orchestrates one end-to-end reminder run: fetch tomorrow's
// appointments, filter, check idempotence, render, send, persist. The loop
// is strictly sequential with a fixed delay between sends to respect
// provider rate limits.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicalaser/whatsapp-reminders/internal/cache"
	"github.com/clinicalaser/whatsapp-reminders/internal/datefmt"
	"github.com/clinicalaser/whatsapp-reminders/internal/filter"
	"github.com/clinicalaser/whatsapp-reminders/internal/metrics"
	"github.com/clinicalaser/whatsapp-reminders/internal/model"
	"github.com/clinicalaser/whatsapp-reminders/internal/phone"
	"github.com/clinicalaser/whatsapp-reminders/internal/repo"
	"github.com/clinicalaser/whatsapp-reminders/internal/template"
	"github.com/clinicalaser/whatsapp-reminders/internal/whatsapp"
)

// ErrRunInProgress is returned when a run is requested while another one
// holds the run-level lock. Double-processing is already prevented per
// message by the idempotence check; the lock prevents it at the job level.
var ErrRunInProgress = errors.New("job: a reminder run is already in progress")

const defaultSendDelay = 500 * time.Millisecond

// AppointmentSource yields a day's appointments. Per-pair upstream
// failures are absorbed inside the source.
type AppointmentSource interface {
	FetchDay(ctx context.Context, date string) []model.Appointment
}

// Summary reports one run's outcome to callers and logs.
type Summary struct {
	TargetDate string
	Seen       int
	Skipped    int
	Attempted  int
	Succeeded  int
	Failed     int
	Duration   time.Duration
}

// Store is the persistence surface the runner needs.
type Store interface {
	repo.MessageStore
	repo.ExecutionStore
}

type Runner struct {
	source    AppointmentSource
	provider  whatsapp.Provider
	store     Store
	sentCache cache.SentCache
	builder   *template.Builder
	metrics   *metrics.ReminderMetrics
	loc       *time.Location
	sendDelay time.Duration

	running atomic.Bool
	jobs    chan queuedRun
}

type queuedRun struct {
	id string
}

type Options struct {
	// SendDelay spaces consecutive sends. Zero means the default 500ms.
	SendDelay time.Duration
	// Location is the clinic timezone used to compute "tomorrow".
	Location *time.Location
	// Metrics may be nil.
	Metrics *metrics.ReminderMetrics
}

func NewRunner(source AppointmentSource, provider whatsapp.Provider, store Store, sentCache cache.SentCache, builder *template.Builder, opts Options) *Runner {
	delay := opts.SendDelay
	if delay <= 0 {
		delay = defaultSendDelay
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if sentCache == nil {
		sentCache = cache.Noop{}
	}
	return &Runner{
		source:    source,
		provider:  provider,
		store:     store,
		sentCache: sentCache,
		builder:   builder,
		metrics:   opts.Metrics,
		loc:       loc,
		sendDelay: delay,
		jobs:      make(chan queuedRun, 1),
	}
}

// Trigger requests a manual run without blocking: the job id is returned
// immediately and a worker started with StartWorker picks the run up.
// Returns false when a run is already queued or in progress.
func (r *Runner) Trigger() (string, bool) {
	if r.running.Load() {
		return "", false
	}
	id := uuid.NewString()
	select {
	case r.jobs <- queuedRun{id: id}:
		return id, true
	default:
		return "", false
	}
}

// StartWorker consumes manually triggered runs until ctx is canceled.
func (r *Runner) StartWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-r.jobs:
				slog.Info("manual reminder run starting", "job_id", q.id)
				if _, err := r.Run(ctx, model.RunManual); err != nil {
					slog.Error("manual reminder run failed", "job_id", q.id, "error", err)
				}
			}
		}
	}()
}

// Run executes one full reminder job. Only one run may be active at a
// time; concurrent calls get ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, kind model.RunKind) (Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	start := time.Now()
	targetDate := datefmt.Tomorrow(r.loc)
	slog.Info("reminder run starting", "kind", kind, "target_date", targetDate)

	execID, err := r.store.StartExecution(ctx, kind)
	if err != nil {
		r.metrics.ObserveRun(string(kind), "error")
		return Summary{}, fmt.Errorf("job: start execution record: %w", err)
	}

	summary := Summary{TargetDate: targetDate}
	var runErr error
	defer func() {
		summary.Duration = time.Since(start)
		exec := model.Execution{
			AppointmentsSeen:  summary.Seen,
			MessagesAttempted: summary.Attempted,
			Succeeded:         summary.Succeeded,
			Failed:            summary.Failed,
			DurationMS:        summary.Duration.Milliseconds(),
		}
		if runErr != nil {
			msg := runErr.Error()
			exec.Error = &msg
		}
		if err := r.store.FinishExecution(ctx, execID, exec); err != nil {
			slog.Error("failed to finalize execution record", "execution_id", execID, "error", err)
		}
		outcome := "ok"
		if runErr != nil {
			outcome = "error"
		}
		r.metrics.ObserveRun(string(kind), outcome)
		slog.Info("reminder run finished",
			"kind", kind,
			"target_date", targetDate,
			"seen", summary.Seen,
			"skipped", summary.Skipped,
			"attempted", summary.Attempted,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"duration_ms", summary.Duration.Milliseconds(),
		)
	}()

	appts := r.source.FetchDay(ctx, targetDate)
	summary.Seen = len(appts)
	r.metrics.ObserveFetched(len(appts))
	if len(appts) == 0 {
		slog.Info("no appointments scheduled", "target_date", targetDate)
		return summary, nil
	}

	eligible := filter.ForReminder(appts, targetDate)
	r.metrics.ObserveDropped("filtered", len(appts)-len(eligible))

	for _, a := range eligible {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("job: run canceled: %w", err)
			return summary, runErr
		}

		sent, err := r.wasAlreadySent(ctx, a.ID, targetDate)
		if err != nil {
			runErr = fmt.Errorf("job: idempotence check for appointment %d: %w", a.ID, err)
			return summary, runErr
		}
		if sent {
			summary.Skipped++
			slog.Info("skipping appointment, reminder already sent",
				"appointment_id", a.ID, "target_date", targetDate)
			continue
		}

		if err := r.dispatch(ctx, a, targetDate, &summary); err != nil {
			runErr = err
			return summary, runErr
		}

		select {
		case <-ctx.Done():
			runErr = fmt.Errorf("job: run canceled: %w", ctx.Err())
			return summary, runErr
		case <-time.After(r.sendDelay):
		}
	}

	return summary, nil
}

// dispatch sends one reminder and persists the outcome. Provider
// rejections are recorded as failed attempts and do not abort the batch;
// persistence failures do.
func (r *Runner) dispatch(ctx context.Context, a model.Appointment, targetDate string, summary *Summary) error {
	to := phone.Normalize(a.Phone)
	if to == "" {
		summary.Skipped++
		slog.Warn("skipping appointment, phone did not normalize",
			"appointment_id", a.ID, "phone", a.Phone)
		return nil
	}

	record := &model.ReminderMessage{
		AppointmentID:   a.ID,
		PatientName:     a.PatientName,
		Phone:           to,
		Body:            r.builder.Summary(targetDate, a),
		AppointmentDate: targetDate,
		Doctor:          a.Doctor,
		Site:            a.Site,
	}

	templateName := r.builder.DefaultTemplate()
	if r.provider.SupportsTemplates() {
		record.TemplateName = &templateName
	}

	id, err := r.store.Insert(ctx, record)
	if err != nil {
		return fmt.Errorf("job: persist attempt for appointment %d: %w", a.ID, err)
	}

	summary.Attempted++

	var providerMsgID string
	if r.provider.SupportsTemplates() {
		params, perr := r.builder.Params(templateName, a, targetDate)
		if perr != nil {
			err = perr
		} else {
			providerMsgID, err = r.provider.SendTemplate(ctx, to, templateName, params)
		}
	} else {
		providerMsgID, err = r.provider.SendText(ctx, to, r.builder.Preview(a, targetDate))
	}

	if err != nil {
		summary.Failed++
		r.metrics.ObserveMessage("failed")
		slog.Error("reminder send failed",
			"appointment_id", a.ID, "patient", a.PatientName, "phone", to, "error", err)
		if ferr := r.store.MarkFailed(ctx, id, err.Error()); ferr != nil {
			return fmt.Errorf("job: record failure for appointment %d: %w", a.ID, ferr)
		}
		return nil
	}

	summary.Succeeded++
	r.metrics.ObserveMessage("sent")
	slog.Info("reminder sent",
		"appointment_id", a.ID, "patient", a.PatientName, "phone", to, "provider_message_id", providerMsgID)

	if serr := r.store.MarkSent(ctx, id, providerMsgID); serr != nil {
		return fmt.Errorf("job: record success for appointment %d: %w", a.ID, serr)
	}
	if cerr := r.sentCache.StoreSent(ctx, a.ID, targetDate, providerMsgID, time.Now()); cerr != nil {
		slog.Warn("failed to cache sent marker", "appointment_id", a.ID, "error", cerr)
	}
	return nil
}

// wasAlreadySent consults the cache first and falls back to the store.
func (r *Runner) wasAlreadySent(ctx context.Context, appointmentID int64, targetDate string) (bool, error) {
	hit, err := r.sentCache.WasSent(ctx, appointmentID, targetDate)
	if err != nil {
		slog.Warn("sent-cache lookup failed, falling back to store", "error", err)
	} else if hit {
		return true, nil
	}
	return r.store.AlreadySent(ctx, appointmentID, targetDate)
}

// Running reports whether a run currently holds the lock.
func (r *Runner) Running() bool {
	return r.running.Load()
}
