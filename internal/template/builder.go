// Package template maps appointments onto the ordered parameter lists of
// provider-approved WhatsApp templates. Parameter order and count are part
// of the approved template definition; a mismatch is rejected by the
// provider at send time and is not detectable locally.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/clinicalaser/whatsapp-reminders/internal/datefmt"
	"github.com/clinicalaser/whatsapp-reminders/internal/model"
)

const (
	// DefaultObservation replaces an empty observation field.
	DefaultObservation = "Sin observaciones adicionales"

	// AskAtReception is the address fallback when the site is unknown.
	AskAtReception = "Preguntar en recepción"

	maxObservationLen = 500
)

// Shape identifies one approved parameter-list layout.
type Shape string

const (
	// ShapeFull: name, date, time, doctor, site, address, visit type,
	// payer, observation (9 parameters).
	ShapeFull Shape = "full"
	// ShapeCompact: name, date, time, doctor, site, room, visit type,
	// payer (8 parameters).
	ShapeCompact Shape = "compact"
	// ShapeConfirmation: date, time (2 parameters).
	ShapeConfirmation Shape = "confirmation"
)

// Definition describes one registered template. UseFirstName selects
// first-name-only substitution; the approved variants disagree on this, so
// it is per-template configuration rather than a global rule.
type Definition struct {
	Name         string
	Shape        Shape
	UseFirstName bool
}

var registry = map[string]Definition{
	"recordatorio_cita_completo_v2": {Name: "recordatorio_cita_completo_v2", Shape: ShapeFull, UseFirstName: true},
	"recordatorio_cita_v1":          {Name: "recordatorio_cita_v1", Shape: ShapeCompact, UseFirstName: false},
	"confirmacion_recibida":         {Name: "confirmacion_recibida", Shape: ShapeConfirmation},
}

// siteAddresses is a substring lookup over the upper-cased site name.
var siteAddresses = []struct {
	match   string
	address string
}{
	{"PEREIRA", "Av Circunvalar Carrera 13 #9-42"},
	{"DOSQUEBRADAS", "Carrera 16 #16-40 barrio valher"},
}

// Builder renders template parameter lists and full-text previews for
// appointments. The target date is always the queried date, never the
// appointment's own date field.
type Builder struct {
	defaultName    string
	contactNumbers []string
}

func NewBuilder(defaultTemplate string, contactNumbers ...string) *Builder {
	if defaultTemplate == "" {
		defaultTemplate = "recordatorio_cita_completo_v2"
	}
	return &Builder{defaultName: defaultTemplate, contactNumbers: contactNumbers}
}

// DefaultTemplate returns the configured template name.
func (b *Builder) DefaultTemplate() string { return b.defaultName }

// Lookup resolves a registered template definition.
func Lookup(name string) (Definition, bool) {
	def, ok := registry[name]
	return def, ok
}

// Params builds the ordered parameter list for the named template from the
// appointment and the externally supplied target date.
func (b *Builder) Params(templateName string, a model.Appointment, targetDate string) ([]string, error) {
	def, ok := Lookup(templateName)
	if !ok {
		return nil, fmt.Errorf("template %q is not registered", templateName)
	}

	name := a.PatientName
	if def.UseFirstName {
		name = firstName(name)
	}
	date := datefmt.LongDate(targetDate)
	hour := datefmt.FormatTime(a.Time, a.AMPM)

	switch def.Shape {
	case ShapeFull:
		return []string{
			name,
			date,
			hour,
			a.Doctor,
			a.Site,
			AddressFor(a.Site),
			orDefault(a.VisitType, "CONSULTA"),
			orDefault(a.Payer, "PARTICULAR"),
			CleanObservation(a.Observation),
		}, nil
	case ShapeCompact:
		return []string{
			name,
			date,
			hour,
			a.Doctor,
			a.Site,
			a.Room,
			orDefault(a.VisitType, "CONSULTA"),
			orDefault(a.Payer, "PARTICULAR"),
		}, nil
	case ShapeConfirmation:
		return []string{date, hour}, nil
	}
	return nil, fmt.Errorf("template %q has unknown shape %q", templateName, def.Shape)
}

// Preview renders the human-readable full text of the default reminder,
// independent of which provider delivers it. Used by logs and the manual
// test endpoint.
func (b *Builder) Preview(a model.Appointment, targetDate string) string {
	params, err := b.Params(b.defaultName, a, targetDate)
	if err != nil || len(params) < 9 {
		params, _ = b.Params("recordatorio_cita_completo_v2", a, targetDate)
	}

	var sb strings.Builder
	sb.WriteString("*Recordatorio de Cita - Clínica Láser*\n\n")
	fmt.Fprintf(&sb, "Hola *%s*,\n\n", params[0])
	sb.WriteString("Le recordamos su cita médica para mañana:\n\n")
	fmt.Fprintf(&sb, "Fecha: %s\n", params[1])
	fmt.Fprintf(&sb, "Hora: %s\n", params[2])
	fmt.Fprintf(&sb, "Médico: %s\n", params[3])
	fmt.Fprintf(&sb, "Sede: %s\n", params[4])
	fmt.Fprintf(&sb, "Dirección: %s\n\n", params[5])
	fmt.Fprintf(&sb, "Tipo: %s\n", params[6])
	fmt.Fprintf(&sb, "Entidad: %s\n", params[7])
	fmt.Fprintf(&sb, "Observaciones: %s\n\n", params[8])
	sb.WriteString("Por favor llegar 20 minutos antes.\n")
	sb.WriteString("Traer documento de identidad y orden médica.")
	if line := b.contactLine(); line != "" {
		sb.WriteString("\n\n")
		sb.WriteString(line)
	}
	return sb.String()
}

// Summary is the short body persisted alongside each send attempt.
func (b *Builder) Summary(targetDate string, a model.Appointment) string {
	return fmt.Sprintf("Recordatorio para %s a las %s",
		datefmt.LongDate(targetDate), datefmt.FormatTime(a.Time, a.AMPM))
}

func (b *Builder) contactLine() string {
	var nums []string
	for _, n := range b.contactNumbers {
		if strings.TrimSpace(n) != "" {
			nums = append(nums, strings.TrimSpace(n))
		}
	}
	if len(nums) == 0 {
		return ""
	}
	return "Para cancelar o reagendar, contáctenos: " + strings.Join(nums, " / ")
}

// AddressFor resolves a site name to a street address by substring match,
// falling back to the raw site name, then to a placeholder.
func AddressFor(site string) string {
	upper := strings.ToUpper(site)
	for _, s := range siteAddresses {
		if strings.Contains(upper, s.match) {
			return s.address
		}
	}
	if strings.TrimSpace(site) == "" {
		return AskAtReception
	}
	return site
}

var (
	newlines   = regexp.MustCompile(`(\\n|\n)+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanObservation collapses newlines to " - ", collapses whitespace, trims
// and truncates the free-text observation for template use.
func CleanObservation(obs string) string {
	if strings.TrimSpace(obs) == "" {
		return DefaultObservation
	}
	out := newlines.ReplaceAllString(obs, " - ")
	out = whitespace.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	if utf8.RuneCountInString(out) > maxObservationLen {
		out = string([]rune(out)[:maxObservationLen])
	}
	return out
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return full
	}
	return fields[0]
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
