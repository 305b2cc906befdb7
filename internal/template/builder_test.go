package template

import (
	"strings"
	"testing"

	"github.com/clinicalaser/whatsapp-reminders/internal/model"
)

var sample = model.Appointment{
	ID:          42,
	PatientName: "MARIA CAMILA LOPEZ",
	Phone:       "3135481803",
	Time:        1000,
	AMPM:        "AM",
	Date:        "2025-11-12",
	Doctor:      "DR. GOMEZ",
	Site:        "SEDE PEREIRA",
	Room:        "201",
	VisitType:   "CONTROL",
	Payer:       "SURA",
	Observation: "Traer examenes\nprevios",
}

func TestParams_FullShape(t *testing.T) {
	t.Parallel()

	b := NewBuilder("recordatorio_cita_completo_v2")
	params, err := b.Params("recordatorio_cita_completo_v2", sample, "2025-11-12")
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}

	want := []string{
		"MARIA", // first name only
		"miércoles, 12 de noviembre de 2025",
		"10:00 AM",
		"DR. GOMEZ",
		"SEDE PEREIRA",
		"Av Circunvalar Carrera 13 #9-42",
		"CONTROL",
		"SURA",
		"Traer examenes - previos",
	}
	if len(params) != len(want) {
		t.Fatalf("expected %d params, got %d: %v", len(want), len(params), params)
	}
	for i := range want {
		if params[i] != want[i] {
			t.Fatalf("param %d = %q, want %q", i+1, params[i], want[i])
		}
	}
}

func TestParams_CompactShapeUsesFullName(t *testing.T) {
	t.Parallel()

	b := NewBuilder("recordatorio_cita_v1")
	params, err := b.Params("recordatorio_cita_v1", sample, "2025-11-12")
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if len(params) != 8 {
		t.Fatalf("expected 8 params, got %d", len(params))
	}
	if params[0] != "MARIA CAMILA LOPEZ" {
		t.Fatalf("compact shape should keep full name, got %q", params[0])
	}
	if params[5] != "201" {
		t.Fatalf("compact shape param 6 should be room, got %q", params[5])
	}
}

func TestParams_ConfirmationShape(t *testing.T) {
	t.Parallel()

	b := NewBuilder("")
	params, err := b.Params("confirmacion_recibida", sample, "2025-11-12")
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
}

func TestParams_UnknownTemplate(t *testing.T) {
	t.Parallel()

	b := NewBuilder("")
	if _, err := b.Params("no_such_template", sample, "2025-11-12"); err == nil {
		t.Fatalf("expected error for unregistered template")
	}
}

func TestParams_UsesTargetDateNotAppointmentDate(t *testing.T) {
	t.Parallel()

	a := sample
	a.Date = "2025-01-01" // upstream date bug: field disagrees with query date

	b := NewBuilder("")
	params, err := b.Params("recordatorio_cita_completo_v2", a, "2025-11-12")
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if params[1] != "miércoles, 12 de noviembre de 2025" {
		t.Fatalf("expected target date in params, got %q", params[1])
	}
}

func TestAddressFor(t *testing.T) {
	t.Parallel()

	cases := []struct{ site, want string }{
		{"PEREIRA", "Av Circunvalar Carrera 13 #9-42"},
		{"Clinica Pereira Centro", "Av Circunvalar Carrera 13 #9-42"},
		{"DOSQUEBRADAS", "Carrera 16 #16-40 barrio valher"},
		{"ARMENIA", "ARMENIA"},
		{"", AskAtReception},
	}
	for _, c := range cases {
		if got := AddressFor(c.site); got != c.want {
			t.Fatalf("AddressFor(%q) = %q, want %q", c.site, got, c.want)
		}
	}
}

func TestCleanObservation(t *testing.T) {
	t.Parallel()

	if got := CleanObservation(""); got != DefaultObservation {
		t.Fatalf("CleanObservation(empty) = %q", got)
	}
	if got := CleanObservation("linea1\nlinea2"); got != "linea1 - linea2" {
		t.Fatalf("CleanObservation() = %q", got)
	}
	if got := CleanObservation(`con\nescape`); got != "con - escape" {
		t.Fatalf("CleanObservation() = %q", got)
	}
	if got := CleanObservation("mucho    espacio"); got != "mucho espacio" {
		t.Fatalf("CleanObservation() = %q", got)
	}

	long := strings.Repeat("a", 600)
	if got := CleanObservation(long); len(got) != 500 {
		t.Fatalf("CleanObservation(long) length = %d, want 500", len(got))
	}
}

func TestPreview_IncludesContactLine(t *testing.T) {
	t.Parallel()

	b := NewBuilder("recordatorio_cita_completo_v2", "3001112233", "3004445566")
	preview := b.Preview(sample, "2025-11-12")

	for _, fragment := range []string{
		"MARIA",
		"miércoles, 12 de noviembre de 2025",
		"10:00 AM",
		"DR. GOMEZ",
		"Av Circunvalar Carrera 13 #9-42",
		"3001112233 / 3004445566",
	} {
		if !strings.Contains(preview, fragment) {
			t.Fatalf("preview missing %q:\n%s", fragment, preview)
		}
	}
}

func TestPreview_NoContactLineWhenUnconfigured(t *testing.T) {
	t.Parallel()

	b := NewBuilder("recordatorio_cita_completo_v2")
	if strings.Contains(b.Preview(sample, "2025-11-12"), "contáctenos") {
		t.Fatalf("preview should not include contact line without configured numbers")
	}
}
