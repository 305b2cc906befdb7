package filter

import (
	"testing"

	"github.com/clinicalaser/whatsapp-reminders/internal/model"
)

func appt(id int64, date, status, phone string) model.Appointment {
	return model.Appointment{
		ID:          id,
		PatientName: "PACIENTE",
		Date:        date,
		Status:      status,
		Phone:       phone,
	}
}

func TestByDate_ExcludesOtherDates(t *testing.T) {
	t.Parallel()

	appts := []model.Appointment{
		appt(1, "2025-11-12", "PENDIENTE", "3135481803"),
		appt(2, "2025-11-13", "PENDIENTE", "3135481803"),
		appt(3, "2025-11-12", "PENDIENTE", "3135481803"),
	}

	got := ByDate(appts, "2025-11-12")
	if len(got) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(got))
	}
	for _, a := range got {
		if a.Date != "2025-11-12" {
			t.Fatalf("appointment %d has date %q, want target date", a.ID, a.Date)
		}
	}
}

func TestByStatus_CanceledExcludedRegardlessOfPhone(t *testing.T) {
	t.Parallel()

	appts := []model.Appointment{
		appt(1, "2025-11-12", "CANCELADO", "3135481803"),
		appt(2, "2025-11-12", "Cancelada", "3135481803"),
		appt(3, "2025-11-12", "PENDIENTE", ""),
		appt(4, "2025-11-12", "", "3135481803"),
	}

	got := ByStatus(appts)
	if len(got) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 4 {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

func TestByPhone_DropsShortAndEmpty(t *testing.T) {
	t.Parallel()

	appts := []model.Appointment{
		appt(1, "2025-11-12", "PENDIENTE", ""),
		appt(2, "2025-11-12", "PENDIENTE", "12345"),
		appt(3, "2025-11-12", "PENDIENTE", "3135481803"),
		appt(4, "2025-11-12", "PENDIENTE", "573135481803"),
	}

	got := ByPhone(appts)
	if len(got) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 4 {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

func TestForReminder_Scenario(t *testing.T) {
	t.Parallel()

	appts := []model.Appointment{
		appt(1, "2025-11-12", "CANCELADO", "3135481803"),
		appt(2, "2025-11-12", "PENDIENTE", "999"),
		appt(3, "2025-11-12", "PENDIENTE", "3135481803"),
	}

	got := ForReminder(appts, "2025-11-12")
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 eligible appointment, got %d", len(got))
	}
	if got[0].ID != 3 {
		t.Fatalf("expected appointment 3, got %d", got[0].ID)
	}
}

func TestFilters_TotalOverEmptyInput(t *testing.T) {
	t.Parallel()

	if got := ForReminder(nil, "2025-11-12"); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}
