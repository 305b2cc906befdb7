// Package agenda queries the clinic scheduling API for appointments. The
// upstream exposes a username/password login returning a bearer token and
// an agenda query per (date, doctor, site); a day's appointments are the
// concatenation over the configured sites × doctors product.
package agenda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clinicalaser/whatsapp-reminders/internal/model"
)

const (
	loginPath  = "/api/uolaser/authentication/login"
	agendaPath = "/api/uolaser/services/agenda/obtener"

	defaultTimeout   = 30 * time.Second
	defaultCallDelay = 200 * time.Millisecond
)

// ErrUnauthorized marks a 401 from the upstream; the client retries once
// after re-authenticating.
var ErrUnauthorized = errors.New("agenda: unauthorized")

// Config wires the client from the environment.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Sites    []string
	Doctors  []string
	// CallDelay spaces the per-pair queries to respect upstream rate
	// limits. Zero means the default.
	CallDelay time.Duration
}

// Client is the appointment source client. Safe for use by a single job
// run; the token is guarded for the overlap between scheduled and manual
// triggers.
type Client struct {
	baseURL    string
	username   string
	password   string
	sites      []string
	doctors    []string
	callDelay  time.Duration
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

func NewClient(cfg Config) *Client {
	delay := cfg.CallDelay
	if delay <= 0 {
		delay = defaultCallDelay
	}
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		sites:     cfg.Sites,
		doctors:   cfg.Doctors,
		callDelay: delay,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type loginRequest struct {
	Username string `json:"usuario"`
	Password string `json:"contrasenia"`
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		Token string `json:"token"`
	} `json:"data"`
}

type agendaRequest struct {
	Date   string `json:"fecha"`
	Doctor string `json:"medico"`
	Site   string `json:"sede"`
}

type agendaResponse struct {
	Status string            `json:"status"`
	Data   []json.RawMessage `json:"data"`
}

// Authenticate logs in and stores the bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agenda: login failed with status %d body=%q", resp.StatusCode, string(raw))
	}

	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return fmt.Errorf("agenda: failed to decode login response: %w", err)
	}
	if lr.Data.Token == "" {
		return fmt.Errorf("agenda: login response carried no token (status=%q)", lr.Status)
	}

	c.mu.Lock()
	c.token = lr.Data.Token
	c.mu.Unlock()

	slog.Info("authenticated against agenda API")
	return nil
}

// Agenda fetches one (date, doctor, site) query, validating items and
// dropping the invalid ones. A 401 triggers exactly one re-authentication
// retry.
func (c *Client) Agenda(ctx context.Context, date, doctor, site string) ([]model.Appointment, error) {
	appts, err := c.agendaOnce(ctx, date, doctor, site)
	if errors.Is(err, ErrUnauthorized) {
		slog.Warn("agenda token expired, re-authenticating")
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		return c.agendaOnce(ctx, date, doctor, site)
	}
	return appts, err
}

func (c *Client) agendaOnce(ctx context.Context, date, doctor, site string) ([]model.Appointment, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
	}

	body, err := json.Marshal(agendaRequest{Date: date, Doctor: doctor, Site: site})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+agendaPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agenda: query failed with status %d body=%q", resp.StatusCode, string(raw))
	}

	var ar agendaResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, fmt.Errorf("agenda: failed to decode query response: %w", err)
	}

	return decodeItems(ar.Data), nil
}

// FetchDay aggregates the date's appointments across every configured
// (site, doctor) pair. Per-pair failures are logged and contribute zero
// results; they never abort the aggregation.
func (c *Client) FetchDay(ctx context.Context, date string) []model.Appointment {
	if len(c.doctors) == 0 {
		slog.Warn("no doctors configured, agenda fetch yields nothing")
		return nil
	}

	var all []model.Appointment
	for _, site := range c.sites {
		for _, doctor := range c.doctors {
			appts, err := c.Agenda(ctx, date, doctor, site)
			if err != nil {
				slog.Error("agenda query failed",
					"site", site, "doctor", doctor, "date", date, "error", err)
			} else if len(appts) > 0 {
				all = append(all, appts...)
				slog.Info("agenda query returned appointments",
					"site", site, "doctor", doctor, "count", len(appts))
			}

			select {
			case <-ctx.Done():
				slog.Warn("agenda fetch canceled", "error", ctx.Err())
				return all
			case <-time.After(c.callDelay):
			}
		}
	}

	slog.Info("agenda fetch complete", "date", date, "total", len(all))
	return all
}

func decodeItems(items []json.RawMessage) []model.Appointment {
	var valid []model.Appointment
	var dropped int
	for i, raw := range items {
		var a model.Appointment
		if err := json.Unmarshal(raw, &a); err != nil {
			dropped++
			slog.Warn("dropping malformed appointment item", "index", i, "error", err)
			continue
		}
		if err := a.Validate(); err != nil {
			dropped++
			slog.Warn("dropping invalid appointment item", "index", i, "error", err)
			continue
		}
		valid = append(valid, a)
	}
	if dropped > 0 {
		slog.Warn("appointment items dropped at ingestion", "dropped", dropped)
	}
	return valid
}
