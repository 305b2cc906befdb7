// Package datefmt renders appointment dates and time codes the way the
// reminder templates expect them: Spanish long dates and 12-hour clock
// times built from the scheduling system's numeric HHMM encoding.
package datefmt

import (
	"fmt"
	"time"
)

const isoDate = "2006-01-02"

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var spanishWeekdays = [...]string{
	"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado",
}

// FormatTime renders a numeric HHMM code plus its AM/PM marker as
// "H:MM AM" on a 12-hour clock. The hour carries no leading zero; an hour
// component of 0 renders as "0", not blank.
func FormatTime(code int, ampm string) string {
	hours := code / 100
	minutes := code % 100
	if hours > 12 {
		hours -= 12
	}
	return fmt.Sprintf("%d:%02d %s", hours, minutes, ampm)
}

// Weekday returns the Spanish weekday name for an ISO date, or "" when the
// date does not parse.
func Weekday(date string) string {
	t, err := time.Parse(isoDate, date)
	if err != nil {
		return ""
	}
	return spanishWeekdays[t.Weekday()]
}

// LongDate renders an ISO date as "weekday, D de month de YYYY". Falls back
// to the raw input when it does not parse, so a malformed upstream date
// still produces a readable message.
func LongDate(date string) string {
	t, err := time.Parse(isoDate, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s, %d de %s de %d",
		spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// Tomorrow returns tomorrow's ISO date in the given location. The job
// computes this once per run and threads the value everywhere; individual
// appointment date fields are never trusted (known upstream data bug).
func Tomorrow(loc *time.Location) string {
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, 1).Format(isoDate)
}

// Today returns today's ISO date in the given location.
func Today(loc *time.Location) string {
	return time.Now().In(loc).Format(isoDate)
}
