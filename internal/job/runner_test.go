package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clinicalaser/whatsapp-reminders/internal/cache"
	"github.com/clinicalaser/whatsapp-reminders/internal/datefmt"
	"github.com/clinicalaser/whatsapp-reminders/internal/model"
	"github.com/clinicalaser/whatsapp-reminders/internal/template"
)

type fakeSource struct {
	appts     []model.Appointment
	askedDate string
}

func (f *fakeSource) FetchDay(_ context.Context, date string) []model.Appointment {
	f.askedDate = date
	out := make([]model.Appointment, len(f.appts))
	for i, a := range f.appts {
		a.Date = date
		out[i] = a
	}
	return out
}

type sentCall struct {
	to       string
	template string
	params   []string
	body     string
}

type fakeProvider struct {
	mu        sync.Mutex
	templated bool
	err       error
	calls     []sentCall
}

func (f *fakeProvider) SendTemplate(_ context.Context, to, name string, params []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, sentCall{to: to, template: name, params: params})
	return "wamid.test", nil
}

func (f *fakeProvider) SendText(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, sentCall{to: to, body: body})
	return "SMtest", nil
}

func (f *fakeProvider) SupportsTemplates() bool { return f.templated }
func (f *fakeProvider) Configured() bool        { return true }
func (f *fakeProvider) Name() string            { return "fake" }

func (f *fakeProvider) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	inserted    []model.ReminderMessage
	markedSent  []int64
	markedFail  map[int64]string
	alreadySent map[string]bool
	finished    []model.Execution
	insertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		markedFail:  make(map[int64]string),
		alreadySent: make(map[string]bool),
	}
}

func sentKey(appointmentID int64, date string) string {
	return fmt.Sprintf("%d@%s", appointmentID, date)
}

func (f *fakeStore) Insert(_ context.Context, m *model.ReminderMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	m.ID = f.nextID
	f.inserted = append(f.inserted, *m)
	return f.nextID, nil
}

func (f *fakeStore) MarkSent(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedSent = append(f.markedSent, id)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedFail[id] = reason
	return nil
}

func (f *fakeStore) Advance(context.Context, string, model.MessageStatus) (bool, error) {
	return false, nil
}

func (f *fakeStore) AlreadySent(_ context.Context, appointmentID int64, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alreadySent[sentKey(appointmentID, date)], nil
}

func (f *fakeStore) StatsToday(context.Context, string) (model.TodayStats, error) {
	return model.TodayStats{}, nil
}

func (f *fakeStore) StartExecution(context.Context, model.RunKind) (int64, error) {
	return 77, nil
}

func (f *fakeStore) FinishExecution(_ context.Context, _ int64, e model.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, e)
	return nil
}

func testRunner(src *fakeSource, prov *fakeProvider, store *fakeStore, sc cache.SentCache) *Runner {
	return NewRunner(src, prov, store, sc, template.NewBuilder("", "6063401709"), Options{
		SendDelay: time.Millisecond,
		Location:  time.UTC,
	})
}

func TestRunSendsOnlyEligibleAppointments(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 1, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Doctor: "DRA GOMEZ", Site: "SEDE PEREIRA", Status: "AGENDADO"},
		{ID: 2, PatientName: "PEDRO RUIZ", Phone: "3001234567", Time: 900, AMPM: "AM", Status: "CANCELADO"},
		{ID: 3, PatientName: "ANA TORRES", Phone: "313", Time: 1000, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true}
	store := newFakeStore()

	summary, err := testRunner(src, prov, store, cache.Noop{}).Run(context.Background(), model.RunScheduled)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if want := datefmt.Tomorrow(time.UTC); src.askedDate != want {
		t.Errorf("fetched date = %q, want %q", src.askedDate, want)
	}
	if summary.Seen != 3 || summary.Attempted != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want seen=3 attempted=1 succeeded=1", summary)
	}

	calls := prov.sent()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if calls[0].to != "+573135481803" {
		t.Errorf("destination = %q, want +573135481803", calls[0].to)
	}
	if calls[0].template != "recordatorio_cita_completo_v2" {
		t.Errorf("template = %q", calls[0].template)
	}
	if len(store.markedSent) != 1 {
		t.Errorf("marked sent = %d rows, want 1", len(store.markedSent))
	}
}

func TestRunSkipsAlreadySentAppointment(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 42, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true}
	store := newFakeStore()
	store.alreadySent[sentKey(42, datefmt.Tomorrow(time.UTC))] = true

	summary, err := testRunner(src, prov, store, cache.Noop{}).Run(context.Background(), model.RunManual)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(prov.sent()) != 0 {
		t.Fatal("provider was invoked for an already-sent appointment")
	}
	if summary.Skipped != 1 || summary.Attempted != 0 {
		t.Errorf("summary = %+v, want skipped=1 attempted=0", summary)
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d rows, want 0", len(store.inserted))
	}
}

type hitCache struct{ cache.Noop }

func (hitCache) WasSent(context.Context, int64, string) (bool, error) { return true, nil }

func TestRunCacheHitShortCircuitsStore(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 9, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true}
	store := newFakeStore()

	summary, err := testRunner(src, prov, store, hitCache{}).Run(context.Background(), model.RunScheduled)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if len(prov.sent()) != 0 {
		t.Error("provider was invoked on cache hit")
	}
}

func TestRunRecordsProviderFailureAndContinues(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 1, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Status: "AGENDADO"},
		{ID: 2, PatientName: "PEDRO RUIZ", Phone: "3001234567", Time: 900, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true, err: errors.New("template paused")}
	store := newFakeStore()

	summary, err := testRunner(src, prov, store, cache.Noop{}).Run(context.Background(), model.RunScheduled)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Attempted != 2 || summary.Failed != 2 || summary.Succeeded != 0 {
		t.Errorf("summary = %+v, want attempted=2 failed=2", summary)
	}
	if len(store.markedFail) != 2 {
		t.Fatalf("marked failed = %d rows, want 2", len(store.markedFail))
	}
	for id, reason := range store.markedFail {
		if reason != "template paused" {
			t.Errorf("row %d failure reason = %q", id, reason)
		}
	}
}

func TestRunUsesTextPathWithoutTemplateSupport(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 1, PatientName: "MARIA LOPEZ GARCIA", Phone: "3135481803", Time: 755, AMPM: "AM", Doctor: "DRA GOMEZ", Site: "SEDE PEREIRA", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: false}
	store := newFakeStore()

	if _, err := testRunner(src, prov, store, cache.Noop{}).Run(context.Background(), model.RunScheduled); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	calls := prov.sent()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if calls[0].template != "" || calls[0].body == "" {
		t.Errorf("expected a text send, got %+v", calls[0])
	}
	if len(store.inserted) != 1 || store.inserted[0].TemplateName != nil {
		t.Error("text sends must not record a template name")
	}
}

func TestRunFinalizesExecutionRecord(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 1, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true}
	store := newFakeStore()

	if _, err := testRunner(src, prov, store, cache.Noop{}).Run(context.Background(), model.RunScheduled); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(store.finished) != 1 {
		t.Fatalf("finalized executions = %d, want 1", len(store.finished))
	}
	e := store.finished[0]
	if e.AppointmentsSeen != 1 || e.Succeeded != 1 || e.Failed != 0 || e.Error != nil {
		t.Errorf("execution record = %+v", e)
	}
}

func TestRunFinalizesExecutionOnPersistenceError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 1, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true}
	store := newFakeStore()
	store.insertErr = errors.New("connection refused")

	if _, err := testRunner(src, prov, store, cache.Noop{}).Run(context.Background(), model.RunScheduled); err == nil {
		t.Fatal("expected a run error on persistence failure")
	}
	if len(store.finished) != 1 {
		t.Fatalf("finalized executions = %d, want 1", len(store.finished))
	}
	if store.finished[0].Error == nil {
		t.Error("execution record is missing the error text")
	}
	if len(prov.sent()) != 0 {
		t.Error("provider was invoked after the insert failed")
	}
}

func TestRunRejectsOverlap(t *testing.T) {
	t.Parallel()

	r := testRunner(&fakeSource{}, &fakeProvider{templated: true}, newFakeStore(), cache.Noop{})
	r.running.Store(true)
	defer r.running.Store(false)

	if _, err := r.Run(context.Background(), model.RunManual); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}

func TestTriggerQueuesExactlyOneRun(t *testing.T) {
	t.Parallel()

	r := testRunner(&fakeSource{}, &fakeProvider{templated: true}, newFakeStore(), cache.Noop{})

	id, ok := r.Trigger()
	if !ok || id == "" {
		t.Fatalf("first Trigger = (%q, %v), want a job id", id, ok)
	}
	if _, ok := r.Trigger(); ok {
		t.Fatal("second Trigger accepted while the first is still queued")
	}
}

func TestTriggerRunConsumedByWorker(t *testing.T) {
	t.Parallel()

	src := &fakeSource{appts: []model.Appointment{
		{ID: 1, PatientName: "MARIA LOPEZ", Phone: "3135481803", Time: 755, AMPM: "AM", Status: "AGENDADO"},
	}}
	prov := &fakeProvider{templated: true}
	store := newFakeStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := testRunner(src, prov, store, cache.Noop{})
	r.StartWorker(ctx)

	if _, ok := r.Trigger(); !ok {
		t.Fatal("Trigger rejected on an idle runner")
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(prov.sent()) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("worker never executed the triggered run")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
