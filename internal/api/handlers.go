package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinicalaser/whatsapp-reminders/internal/datefmt"
	"github.com/clinicalaser/whatsapp-reminders/internal/metrics"
	"github.com/clinicalaser/whatsapp-reminders/internal/model"
	"github.com/clinicalaser/whatsapp-reminders/internal/phone"
	"github.com/clinicalaser/whatsapp-reminders/internal/repo"
	"github.com/clinicalaser/whatsapp-reminders/internal/scheduler"
	"github.com/clinicalaser/whatsapp-reminders/internal/template"
	"github.com/clinicalaser/whatsapp-reminders/internal/whatsapp"
)

// Trigger is the slice of the job runner the handlers need.
type Trigger interface {
	Trigger() (string, bool)
	Running() bool
}

// readMarker is satisfied by providers that can flag inbound messages as
// read (the Meta client).
type readMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// templateStatusReader is satisfied by providers that can report a
// template's approval state (the Meta client).
type templateStatusReader interface {
	TemplateStatus(ctx context.Context, templateName string) (string, error)
}

type Handler struct {
	trigger     Trigger
	sched       *scheduler.Scheduler
	store       repo.Store
	provider    whatsapp.Provider
	builder     *template.Builder
	metrics     *metrics.ReminderMetrics
	verifyToken string
	loc         *time.Location
}

func NewHandler(trigger Trigger, s *scheduler.Scheduler, store repo.Store, provider whatsapp.Provider, builder *template.Builder, m *metrics.ReminderMetrics, verifyToken string, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		trigger:     trigger,
		sched:       s,
		store:       store,
		provider:    provider,
		builder:     builder,
		metrics:     m,
		verifyToken: verifyToken,
		loc:         loc,
	}
}

// today is the current date in the clinic timezone, the same date frame
// every other part of the system uses.
func (h *Handler) today() string {
	return datefmt.Today(h.loc)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":                "ok",
		"timestamp":             time.Now().UTC().Format(time.RFC3339),
		"proveedor":             h.provider.Name(),
		"proveedor_configurado": h.provider.Configured(),
		"ejecucion_en_progreso": h.trigger.Running(),
		"planificador_activo":   h.sched.IsRunning(),
		"proxima_ejecucion":     h.sched.NextFire().Format(time.RFC3339),
	}
	if stats, err := h.store.StatsToday(r.Context(), h.today()); err == nil {
		resp["estadisticas_hoy"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"success":     true,
		"proveedor":   h.provider.Name(),
		"configurado": h.provider.Configured(),
		"plantillas":  h.provider.SupportsTemplates(),
	}
	if pr, ok := h.provider.(whatsapp.ProfileReader); ok && h.provider.Configured() {
		if profile, err := pr.Profile(r.Context()); err != nil {
			resp["perfil_error"] = err.Error()
		} else {
			resp["perfil"] = profile
		}
	}
	if tr, ok := h.provider.(templateStatusReader); ok && h.provider.Configured() {
		name := h.builder.DefaultTemplate()
		resp["plantilla"] = name
		if status, err := tr.TemplateStatus(r.Context(), name); err != nil {
			resp["plantilla_estado_error"] = err.Error()
		} else {
			resp["plantilla_estado"] = status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunReminders accepts a manual run and returns immediately; the job
// executes on the runner's worker goroutine.
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.trigger.Trigger()
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success":   false,
			"mensaje":   "ya hay una ejecución en progreso",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":   true,
		"mensaje":   "ejecución de recordatorios iniciada",
		"jobId":     jobID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type testMessageRequest struct {
	Phone       string `json:"telefono"`
	PatientName string `json:"nombre"`
	Time        int    `json:"hora"`
	AMPM        string `json:"ampm"`
	Doctor      string `json:"medico"`
	Site        string `json:"sede"`
	VisitType   string `json:"tipo"`
	Payer       string `json:"entidad"`
	Observation string `json:"observacion"`
}

// TestMessage sends one ad-hoc message so operators can verify provider
// credentials without waiting for a run. Nothing is persisted.
func (h *Handler) TestMessage(w http.ResponseWriter, r *http.Request) {
	var req testMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "cuerpo JSON inválido"})
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "el campo telefono es obligatorio"})
		return
	}
	to := phone.Normalize(phone.First(req.Phone))
	if to == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "número de teléfono inválido"})
		return
	}

	var (
		msgID string
		err   error
	)
	if req.PatientName != "" && h.provider.SupportsTemplates() {
		appt := model.Appointment{
			PatientName: req.PatientName,
			Time:        req.Time,
			AMPM:        req.AMPM,
			Doctor:      req.Doctor,
			Site:        req.Site,
			VisitType:   req.VisitType,
			Payer:       req.Payer,
			Observation: req.Observation,
		}
		name := h.builder.DefaultTemplate()
		var params []string
		params, err = h.builder.Params(name, appt, time.Now().Format("2006-01-02"))
		if err == nil {
			msgID, err = h.provider.SendTemplate(r.Context(), to, name, params)
		}
	} else {
		body := "Mensaje de prueba del sistema de recordatorios de Clínica Láser."
		if req.PatientName != "" {
			body = fmt.Sprintf("Hola %s, este es un mensaje de prueba del sistema de recordatorios.", req.PatientName)
		}
		msgID, err = h.provider.SendText(r.Context(), to, body)
	}

	if err != nil {
		slog.Error("test message failed", "phone", to, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"mensaje":   "mensaje de prueba enviado",
		"telefono":  to,
		"messageId": msgID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	fecha := h.today()
	stats, err := h.store.StatsToday(r.Context(), fecha)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"fecha":        fecha,
		"estadisticas": stats,
	})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":   h.sched.IsRunning(),
		"next_fire": h.sched.NextFire().Format(time.RFC3339),
	})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// VerifyWebhook answers the Meta subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken && h.verifyToken != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// Meta delivery-status payload, trimmed to the fields we read.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ReceiveWebhook ingests delivery-status events. The raw payload is stored
// before any interpretation so a processing bug never loses an event, and
// the response is always 200 so the provider does not retry storms.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Warn("webhook payload did not parse", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				h.processStatus(r, raw, st.ID, st.Status, st.RecipientID, st.Timestamp)
			}
			for _, msg := range change.Value.Messages {
				ev := repo.WebhookEvent{
					EventType:     "message",
					ProviderMsgID: msg.ID,
					Phone:         msg.From,
					Payload:       raw,
				}
				if _, err := h.store.InsertEvent(r.Context(), ev); err != nil {
					slog.Error("failed to store inbound message event", "error", err)
				}
				h.metrics.ObserveWebhookEvent("message")

				if reader, ok := h.provider.(readMarker); ok {
					if err := reader.MarkRead(r.Context(), msg.ID); err != nil {
						slog.Warn("failed to mark inbound message read", "message_id", msg.ID, "error", err)
					}
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *Handler) processStatus(r *http.Request, raw []byte, msgID, status, recipient, ts string) {
	ev := repo.WebhookEvent{
		EventType:     "status",
		ProviderMsgID: msgID,
		Phone:         recipient,
		Status:        status,
		ProviderTime:  ts,
		Payload:       raw,
	}
	evID, err := h.store.InsertEvent(r.Context(), ev)
	if err != nil {
		slog.Error("failed to store webhook event", "provider_message_id", msgID, "error", err)
		return
	}
	h.metrics.ObserveWebhookEvent(status)

	var next model.MessageStatus
	switch status {
	case "delivered":
		next = model.MessageDelivered
	case "read":
		next = model.MessageRead
	default:
		// sent and failed arrive here too; they are recorded but never
		// drive a transition.
		return
	}

	advanced, err := h.store.Advance(r.Context(), msgID, next)
	if err != nil {
		slog.Error("failed to advance message status",
			"provider_message_id", msgID, "status", status, "error", err)
		return
	}
	if !advanced {
		slog.Info("webhook event matched no advanceable message",
			"provider_message_id", msgID, "status", status)
	}
	if err := h.store.MarkEventProcessed(r.Context(), evID); err != nil {
		slog.Error("failed to mark webhook event processed", "event_id", evID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
