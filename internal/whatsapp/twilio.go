package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicalaser/whatsapp-reminders/internal/phone"
)

const (
	twilioBaseURL     = "https://api.twilio.com"
	twilioHTTPTimeout = 10 * time.Second
)

// TwilioClient sends free-text WhatsApp messages through Twilio's REST API.
// It has no template support; callers render the full message body and the
// send only reaches destinations Twilio can open a conversation with.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

// NewTwilioClient builds a client. from is the WhatsApp-enabled sender in
// "whatsapp:+E164" form.
func NewTwilioClient(accountSID, authToken, from string) *TwilioClient {
	return &TwilioClient{
		baseURL:    twilioBaseURL,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{
			Timeout: twilioHTTPTimeout,
		},
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (c *TwilioClient) WithBaseURL(u string) *TwilioClient {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

func (c *TwilioClient) Name() string            { return "twilio" }
func (c *TwilioClient) SupportsTemplates() bool { return false }

func (c *TwilioClient) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

// SendTemplate is not available on the conversational integration.
func (c *TwilioClient) SendTemplate(ctx context.Context, to, templateName string, params []string) (string, error) {
	return "", &APIError{Message: "twilio integration does not support templated sends"}
}

// SendText posts one message. to is the canonical +E164 destination.
func (c *TwilioClient) SendText(ctx context.Context, to, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("twilio: message body required")
	}
	dest := phone.WhatsAppTo(to)
	if dest == "" {
		return "", fmt.Errorf("twilio: destination %q is not a usable number", to)
	}

	form := url.Values{}
	form.Set("To", dest)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &er); err == nil && er.Message != "" {
			return "", &APIError{Code: er.Code, Message: er.Message}
		}
		return "", &APIError{Message: fmt.Sprintf("unexpected status code %d body=%q", resp.StatusCode, string(raw))}
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode twilio response: %w body=%q", err, string(raw))
	}
	if parsed.SID == "" {
		return "", fmt.Errorf("missing sid in twilio response body=%q", string(raw))
	}

	slog.Debug("twilio message accepted", "sid", parsed.SID, "status", parsed.Status)
	return parsed.SID, nil
}
