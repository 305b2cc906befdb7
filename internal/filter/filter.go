// Package filter reduces the full appointment set to the subset eligible
// for a reminder. Every filter is total over its input and logs its own
// drop count; the composed result is an intersection, so ordering only
// affects logging granularity.
package filter

import (
	"log/slog"

	"github.com/clinicalaser/whatsapp-reminders/internal/model"
	"github.com/clinicalaser/whatsapp-reminders/internal/phone"
)

// ByDate keeps appointments whose date equals the externally supplied
// target date. The target is the date that was queried, never re-derived
// from the appointment's own date field.
func ByDate(appts []model.Appointment, targetDate string) []model.Appointment {
	var kept []model.Appointment
	for _, a := range appts {
		if a.Date == targetDate {
			kept = append(kept, a)
		}
	}
	slog.Info("filtered appointments by date",
		"target_date", targetDate, "kept", len(kept), "dropped", len(appts)-len(kept))
	return kept
}

// ByStatus drops canceled appointments. Unrecognized or empty statuses are
// kept; only the canceled vocabulary excludes.
func ByStatus(appts []model.Appointment) []model.Appointment {
	var kept []model.Appointment
	for _, a := range appts {
		if model.ParseAppointmentStatus(a.Status) != model.StatusCanceled {
			kept = append(kept, a)
		}
	}
	if dropped := len(appts) - len(kept); dropped > 0 {
		slog.Info("dropped canceled appointments", "dropped", dropped)
	}
	return kept
}

// ByPhone drops appointments with no phone or a phone failing the validity
// check.
func ByPhone(appts []model.Appointment) []model.Appointment {
	var kept []model.Appointment
	for _, a := range appts {
		if a.Phone != "" && phone.IsValid(a.Phone) {
			kept = append(kept, a)
			continue
		}
		slog.Warn("appointment has invalid phone", "appointment_id", a.ID, "phone", a.Phone)
	}
	if dropped := len(appts) - len(kept); dropped > 0 {
		slog.Warn("appointments without valid phone", "dropped", dropped)
	}
	return kept
}

// ForReminder composes the three stages: target date, non-canceled, valid
// phone.
func ForReminder(appts []model.Appointment, targetDate string) []model.Appointment {
	out := ByDate(appts, targetDate)
	out = ByStatus(out)
	out = ByPhone(out)
	slog.Info("appointments eligible for reminder", "count", len(out))
	return out
}
