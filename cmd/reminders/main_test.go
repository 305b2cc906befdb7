package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinicalaser/whatsapp-reminders/internal/config"
	"github.com/clinicalaser/whatsapp-reminders/internal/whatsapp"
)

func TestLoggingMiddleware_PassesThroughAndCapturesStatus(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestBuildProvider(t *testing.T) {
	t.Parallel()

	meta := buildProvider(config.WhatsAppConfig{Provider: "meta"})
	if meta.Name() != "meta" {
		t.Fatalf("expected meta provider, got %q", meta.Name())
	}
	if _, ok := meta.(*whatsapp.MetaClient); !ok {
		t.Fatalf("expected *whatsapp.MetaClient, got %T", meta)
	}

	twilio := buildProvider(config.WhatsAppConfig{Provider: "twilio"})
	if twilio.Name() != "twilio" {
		t.Fatalf("expected twilio provider, got %q", twilio.Name())
	}
	if twilio.SupportsTemplates() {
		t.Fatalf("expected twilio provider without template support")
	}
}
