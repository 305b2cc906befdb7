// Package phone canonicalizes Colombian patient phone numbers for WhatsApp
// delivery. The upstream scheduling system stores free-text phone fields
// that may hold several numbers joined by "-", "/" or whitespace; only the
// first one is used.
package phone

import (
	"regexp"
	"strings"
)

const countryCode = "57"

const nationalDigits = 10

var separators = regexp.MustCompile(`[\s/\-]+`)

var nonDigits = regexp.MustCompile(`\D`)

// First extracts the first number from a raw phone field, without
// canonicalizing it. Returns "" when the field is empty.
func First(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := separators.Split(raw, -1)
	for _, p := range parts {
		if p != "" {
			return p
		}
	}
	return ""
}

// Normalize reduces a raw phone field to one E.164 destination, "+57" plus
// ten national digits. The first number in the field wins. Returns "" when
// no usable number is present.
func Normalize(raw string) string {
	digits := nonDigits.ReplaceAllString(First(raw), "")
	switch {
	case len(digits) == nationalDigits:
		return "+" + countryCode + digits
	case len(digits) == nationalDigits+2 && strings.HasPrefix(digits, countryCode):
		return "+" + digits
	default:
		return ""
	}
}

// IsValid is the filter-stage check: the whole field, digits only, must be
// exactly the national length or the national length plus country code.
// Intentionally looser than Normalize, which also inspects the prefix.
func IsValid(raw string) bool {
	digits := nonDigits.ReplaceAllString(raw, "")
	return len(digits) == nationalDigits || len(digits) == nationalDigits+2
}

// WhatsAppTo renders the destination in the provider's "whatsapp:+<E164>"
// addressing form used by the conversational API.
func WhatsAppTo(raw string) string {
	normalized := Normalize(raw)
	if normalized == "" {
		return ""
	}
	return "whatsapp:" + normalized
}
