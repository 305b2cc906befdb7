// Package config loads all service configuration from environment
// variables. LoadAll collects every problem it finds so a misconfigured
// deployment reports the full list at once instead of failing one key at
// a time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Agenda    AgendaConfig
	WhatsApp  WhatsAppConfig
	Job       JobConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Address  string
	LogLevel string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// AgendaConfig points at the clinic scheduling API. Doctors and Sites
// define the full query grid for one day.
type AgendaConfig struct {
	BaseURL   string
	Username  string
	Password  string
	Doctors   []string
	Sites     []string
	CallDelay time.Duration
}

type WhatsAppConfig struct {
	// Provider selects the delivery backend: "meta" or "twilio".
	Provider string

	MetaAccessToken   string
	MetaPhoneNumberID string
	MetaWABAID        string
	MetaVerifyToken   string
	TemplateName      string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

type JobConfig struct {
	SendDelay      time.Duration
	ContactNumbers []string
}

type SchedulerConfig struct {
	// FireAt is the daily run time in HH:MM, interpreted in Timezone.
	FireAt   string
	Timezone string
}

func LoadAll() (*Config, error) {
	var errs []error

	collect := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectInt := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:  getEnv("SERVER_ADDRESS", ":3000"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			PostgresURL: collect("POSTGRES_URL"),
		},
		Agenda: AgendaConfig{
			BaseURL:   collect("AGENDA_API_URL"),
			Username:  collect("AGENDA_API_USER"),
			Password:  collect("AGENDA_API_PASSWORD"),
			Doctors:   getEnvList("AGENDA_DOCTORS"),
			Sites:     getEnvListDefault("AGENDA_SITES", []string{"SEDE PEREIRA", "SEDE DOSQUEBRADAS"}),
			CallDelay: time.Duration(collectInt("AGENDA_CALL_DELAY_MS", 300)) * time.Millisecond,
		},
		WhatsApp: WhatsAppConfig{
			Provider:          getEnv("WHATSAPP_PROVIDER", "meta"),
			MetaAccessToken:   os.Getenv("META_ACCESS_TOKEN"),
			MetaPhoneNumberID: os.Getenv("META_PHONE_NUMBER_ID"),
			MetaWABAID:        os.Getenv("META_WABA_ID"),
			MetaVerifyToken:   os.Getenv("META_WEBHOOK_VERIFY_TOKEN"),
			TemplateName:      getEnv("WHATSAPP_TEMPLATE_NAME", "recordatorio_cita_completo_v2"),
			TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		},
		Job: JobConfig{
			SendDelay:      time.Duration(collectInt("SEND_DELAY_MS", 500)) * time.Millisecond,
			ContactNumbers: getEnvList("CONTACT_NUMBERS"),
		},
		Scheduler: SchedulerConfig{
			FireAt:   getEnv("SCHEDULE_TIME", "18:00"),
			Timezone: getEnv("SCHEDULE_TIMEZONE", "America/Bogota"),
		},
		Redis: loadRedisConfig(&errs),
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig(errs *[]error) RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		*errs = append(*errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 172800)
	if err != nil {
		*errs = append(*errs, err)
	}
	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}
}

func validate(cfg *Config) []error {
	var errs []error

	switch cfg.WhatsApp.Provider {
	case "meta", "twilio":
	default:
		errs = append(errs, fmt.Errorf("WHATSAPP_PROVIDER must be meta or twilio, got %q", cfg.WhatsApp.Provider))
	}
	if len(cfg.Agenda.Doctors) == 0 {
		errs = append(errs, errors.New("AGENDA_DOCTORS must list at least one doctor"))
	}
	if cfg.Agenda.CallDelay < 0 {
		errs = append(errs, errors.New("AGENDA_CALL_DELAY_MS must be >= 0"))
	}
	if cfg.Job.SendDelay < 0 {
		errs = append(errs, errors.New("SEND_DELAY_MS must be >= 0"))
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULE_TIMEZONE %q: %w", cfg.Scheduler.Timezone, err))
	}
	if err := validFireAt(cfg.Scheduler.FireAt); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validFireAt(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return fmt.Errorf("SCHEDULE_TIME %q is not HH:MM", v)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("SCHEDULE_TIME %q has an invalid hour", v)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("SCHEDULE_TIME %q has an invalid minute", v)
	}
	return nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

// getEnvList splits a comma-separated env var, trimming blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvListDefault(key string, def []string) []string {
	if v := getEnvList(key); len(v) > 0 {
		return v
	}
	return def
}

func joinErrors(errs []error) error {
	var filtered []error
	for _, e := range errs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return errors.Join(filtered...)
}
