package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	graphBaseURL    = "https://graph.facebook.com/v18.0"
	templateLang    = "es"
	metaHTTPTimeout = 30 * time.Second
)

// MetaClient sends templated and free-text messages through the WhatsApp
// Business Platform (Graph API).
type MetaClient struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	wabaID        string
	httpClient    *http.Client
}

func NewMetaClient(accessToken, phoneNumberID, wabaID string) *MetaClient {
	return &MetaClient{
		baseURL:       graphBaseURL,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		wabaID:        wabaID,
		httpClient: &http.Client{
			Timeout: metaHTTPTimeout,
		},
	}
}

// WithBaseURL overrides the Graph API endpoint. Used by tests.
func (c *MetaClient) WithBaseURL(u string) *MetaClient {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

func (c *MetaClient) Name() string            { return "meta" }
func (c *MetaClient) SupportsTemplates() bool { return true }

func (c *MetaClient) Configured() bool {
	return c.accessToken != "" && c.phoneNumberID != ""
}

type metaTemplatePayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         metaTemplate `json:"template"`
}

type metaTemplate struct {
	Name       string          `json:"name"`
	Language   metaLanguage    `json:"language"`
	Components []metaComponent `json:"components"`
}

type metaLanguage struct {
	Code string `json:"code"`
}

type metaComponent struct {
	Type       string          `json:"type"`
	Parameters []metaParameter `json:"parameters"`
}

type metaParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type metaTextPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             metaText `json:"text"`
}

type metaText struct {
	Body string `json:"body"`
}

type metaSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type metaErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Subcode int    `json:"error_subcode"`
	} `json:"error"`
}

// SendTemplate dispatches one templated message. The parameter list must
// match the approved template definition exactly and in order.
func (c *MetaClient) SendTemplate(ctx context.Context, to, templateName string, params []string) (string, error) {
	parameters := make([]metaParameter, 0, len(params))
	for _, p := range params {
		parameters = append(parameters, metaParameter{Type: "text", Text: p})
	}

	payload := metaTemplatePayload{
		MessagingProduct: "whatsapp",
		To:               graphTo(to),
		Type:             "template",
		Template: metaTemplate{
			Name:     templateName,
			Language: metaLanguage{Code: templateLang},
			Components: []metaComponent{
				{Type: "body", Parameters: parameters},
			},
		},
	}
	return c.postMessage(ctx, payload)
}

// SendText dispatches one free-text message. Only delivered when the
// destination has an open conversation window.
func (c *MetaClient) SendText(ctx context.Context, to, body string) (string, error) {
	payload := metaTextPayload{
		MessagingProduct: "whatsapp",
		To:               graphTo(to),
		Type:             "text",
		Text:             metaText{Body: body},
	}
	return c.postMessage(ctx, payload)
}

// MarkRead flags an inbound message as read. Failures are logged only.
func (c *MetaClient) MarkRead(ctx context.Context, messageID string) error {
	body := map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	_, err := c.postMessage(ctx, body)
	return err
}

// Profile reads the business account metadata.
func (c *MetaClient) Profile(ctx context.Context) (*BusinessProfile, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=display_phone_number,verified_name,quality_rating",
		c.baseURL, c.phoneNumberID)

	var profile BusinessProfile
	if err := c.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// TemplateStatus reads the approval state of a named template.
func (c *MetaClient) TemplateStatus(ctx context.Context, templateName string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/message_templates?name=%s",
		c.baseURL, c.wabaID, url.QueryEscape(templateName))

	var out struct {
		Data []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return "", err
	}
	for _, tpl := range out.Data {
		if tpl.Name == templateName {
			return tpl.Status, nil
		}
	}
	return "", fmt.Errorf("template %q not found in business account", templateName)
}

func (c *MetaClient) postMessage(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseMetaError(resp.StatusCode, raw)
	}

	var sr metaSendResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("failed to decode graph response: %w body=%q", err, string(raw))
	}
	if len(sr.Messages) == 0 || sr.Messages[0].ID == "" {
		return "", fmt.Errorf("missing message id in graph response body=%q", string(raw))
	}

	slog.Debug("meta message accepted", "message_id", sr.Messages[0].ID)
	return sr.Messages[0].ID, nil
}

func (c *MetaClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseMetaError(resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}

func parseMetaError(status int, raw []byte) error {
	var er metaErrorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		return &APIError{Code: er.Error.Code, Message: er.Error.Message}
	}
	return &APIError{Message: fmt.Sprintf("unexpected status code %d body=%q", status, string(raw))}
}

// graphTo strips the leading + the Graph API does not want.
func graphTo(to string) string {
	return strings.TrimPrefix(to, "+")
}
