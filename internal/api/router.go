package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /api/provider/estado", h.ProviderStatus)
	mux.HandleFunc("POST /api/ejecutar-recordatorios", h.RunReminders)
	mux.HandleFunc("POST /api/prueba-whatsapp", h.TestMessage)
	mux.HandleFunc("GET /api/estadisticas", h.Stats)

	mux.HandleFunc("GET /api/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /api/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /api/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("GET /webhooks/whatsapp", h.VerifyWebhook)
	mux.HandleFunc("POST /webhooks/whatsapp", h.ReceiveWebhook)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("whatsapp-reminders"))
	})

	return mux
}
