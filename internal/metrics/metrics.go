// Package metrics exposes Prometheus counters for the reminder flow.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReminderMetrics counts the dispatch pipeline stages. All methods are
// nil-safe so callers can run without metrics wired.
type ReminderMetrics struct {
	appointmentsFetched prometheus.Counter
	appointmentsDropped *prometheus.CounterVec
	messagesTotal       *prometheus.CounterVec
	webhookEvents       *prometheus.CounterVec
	runsTotal           *prometheus.CounterVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		appointmentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "appointments_fetched_total",
			Help:      "Appointments returned by the scheduling API",
		}),
		appointmentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "appointments_dropped_total",
			Help:      "Appointments excluded before dispatch",
		}, []string{"reason"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "messages_total",
			Help:      "Send attempts by outcome",
		}, []string{"status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "webhook_events_total",
			Help:      "Inbound delivery-status webhook events",
		}, []string{"status"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Name:      "runs_total",
			Help:      "Job runs by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.appointmentsFetched,
		m.appointmentsDropped,
		m.messagesTotal,
		m.webhookEvents,
		m.runsTotal,
	)
	return m
}

func (m *ReminderMetrics) ObserveFetched(n int) {
	if m == nil {
		return
	}
	m.appointmentsFetched.Add(float64(n))
}

func (m *ReminderMetrics) ObserveDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.appointmentsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *ReminderMetrics) ObserveMessage(status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *ReminderMetrics) ObserveWebhookEvent(status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(status).Inc()
}

func (m *ReminderMetrics) ObserveRun(kind, outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(kind, outcome).Inc()
}
