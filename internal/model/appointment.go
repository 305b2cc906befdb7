package model

import (
	"errors"
	"strings"
)

// Appointment is a scheduling-system record, read-only to this service.
// JSON tags follow the upstream agenda API field names.
type Appointment struct {
	ID          int64   `json:"id"`
	PatientName string  `json:"nombre"`
	Phone       string  `json:"telefono"`
	Document    string  `json:"documento"`
	DocType     string  `json:"td"`
	Time        int     `json:"hora"`
	AMPM        string  `json:"ampm"`
	Date        string  `json:"requerida"`
	Doctor      string  `json:"medico"`
	Site        string  `json:"sede"`
	Room        string  `json:"consultorio"`
	VisitType   string  `json:"tipo"`
	Payer       string  `json:"entidad"`
	Concept     string  `json:"concepto"`
	Observation string  `json:"observacion"`
	Status      string  `json:"estado"`
	CancelNote  string  `json:"motivoCancela"`
	RequestedAt string  `json:"fechaSolicita"`
	Order       int     `json:"orden"`
	CreatedBy   string  `json:"creadaPor"`
	ModifiedBy  string  `json:"modificadaPor"`
	UpdatedAt   string  `json:"actualizada"`
	Printed     *string `json:"impresa"`
}

// Validate rejects records that cannot be turned into a reminder at all.
// Invalid records are dropped at ingestion, never fatal.
func (a Appointment) Validate() error {
	if a.ID <= 0 {
		return errors.New("appointment id must be positive")
	}
	if strings.TrimSpace(a.PatientName) == "" {
		return errors.New("appointment patient name is empty")
	}
	if a.Time < 0 || a.Time > 2359 {
		return errors.New("appointment time code out of range")
	}
	return nil
}

// AppointmentStatus is the closed form of the upstream free-text status.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCanceled  AppointmentStatus = "canceled"
	StatusAttended  AppointmentStatus = "attended"
	StatusUnknown   AppointmentStatus = "unknown"
)

// canceledVocabulary is matched as a case-insensitive substring. The
// upstream system emits variants like CANCELADO, CANCELADA and CANCELO.
var canceledVocabulary = []string{"cancel"}

// ParseAppointmentStatus normalizes the upstream free-text status. Anything
// not recognized is Unknown and treated as sendable downstream.
func ParseAppointmentStatus(raw string) AppointmentStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StatusUnknown
	}
	for _, v := range canceledVocabulary {
		if strings.Contains(s, v) {
			return StatusCanceled
		}
	}
	switch s {
	case "atendido", "atendida":
		return StatusAttended
	case "pendiente", "agendado", "agendada", "confirmado", "confirmada":
		return StatusScheduled
	}
	return StatusUnknown
}
