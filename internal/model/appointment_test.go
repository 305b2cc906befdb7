package model

import "testing"

func TestParseAppointmentStatus_CanceledVariants(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"CANCELADO", "CANCELADA", "cancelada", "Cancelo cita", "CANCELADO POR PACIENTE"} {
		if got := ParseAppointmentStatus(raw); got != StatusCanceled {
			t.Fatalf("ParseAppointmentStatus(%q) = %q, want %q", raw, got, StatusCanceled)
		}
	}
}

func TestParseAppointmentStatus_NonCanceled(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want AppointmentStatus
	}{
		{"PENDIENTE", StatusScheduled},
		{"Confirmada", StatusScheduled},
		{"ATENDIDO", StatusAttended},
		{"", StatusUnknown},
		{"NO_ASISTIO", StatusUnknown},
		{"algo raro", StatusUnknown},
	}
	for _, c := range cases {
		if got := ParseAppointmentStatus(c.raw); got != c.want {
			t.Fatalf("ParseAppointmentStatus(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestAppointmentValidate(t *testing.T) {
	t.Parallel()

	valid := Appointment{ID: 42, PatientName: "MARIA LOPEZ", Time: 755}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	for name, a := range map[string]Appointment{
		"zero id":      {PatientName: "X", Time: 800},
		"empty name":   {ID: 1, PatientName: "  ", Time: 800},
		"time too big": {ID: 1, PatientName: "X", Time: 2400},
	} {
		if err := a.Validate(); err == nil {
			t.Fatalf("Validate() expected error for %s", name)
		}
	}
}

func TestMessageStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := [][2]MessageStatus{
		{MessagePending, MessageSent},
		{MessagePending, MessageFailed},
		{MessageSent, MessageDelivered},
		{MessageSent, MessageRead},
		{MessageDelivered, MessageRead},
	}
	for _, tr := range allowed {
		if !tr[0].CanTransitionTo(tr[1]) {
			t.Fatalf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]MessageStatus{
		{MessageSent, MessagePending},
		{MessageRead, MessageDelivered},
		{MessageSent, MessageFailed},
		{MessageFailed, MessageSent},
		{MessageDelivered, MessageSent},
		{MessagePending, MessageRead},
	}
	for _, tr := range denied {
		if tr[0].CanTransitionTo(tr[1]) {
			t.Fatalf("expected %s -> %s to be denied", tr[0], tr[1])
		}
	}
}
