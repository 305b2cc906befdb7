// Package whatsapp holds the delivery-provider clients. Two interchangeable
// implementations exist: the Meta Business Platform (templated sends) and
// Twilio (conversational free-text sends). Configuration selects one.
package whatsapp

import (
	"context"
	"fmt"
)

// Provider sends a single WhatsApp message. Implementations report the
// provider message id on success and an *APIError on provider rejection.
type Provider interface {
	// SendTemplate dispatches a pre-approved template with its ordered
	// parameter list. Only meaningful when SupportsTemplates is true.
	SendTemplate(ctx context.Context, to, templateName string, params []string) (string, error)

	// SendText dispatches a free-text message. On the Business Platform
	// this only succeeds inside an open conversation window.
	SendText(ctx context.Context, to, body string) (string, error)

	// SupportsTemplates reports whether templated sends are available.
	SupportsTemplates() bool

	// Configured reports whether the provider credentials are present.
	Configured() bool

	// Name identifies the provider in logs and API responses.
	Name() string
}

// APIError is a provider-side rejection: invalid template, rate limit,
// unregistered number, closed conversation window, bad credentials.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// BusinessProfile is the provider account metadata surfaced by the
// configuration-check endpoint.
type BusinessProfile struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
	QualityRating      string `json:"quality_rating"`
}

// ProfileReader is implemented by providers that can describe their own
// account. The estado handler type-asserts for it.
type ProfileReader interface {
	Profile(ctx context.Context) (*BusinessProfile, error)
}
