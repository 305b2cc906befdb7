package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/clinicalaser/whatsapp-reminders/internal/agenda"
	"github.com/clinicalaser/whatsapp-reminders/internal/api"
	"github.com/clinicalaser/whatsapp-reminders/internal/cache"
	"github.com/clinicalaser/whatsapp-reminders/internal/config"
	"github.com/clinicalaser/whatsapp-reminders/internal/job"
	"github.com/clinicalaser/whatsapp-reminders/internal/metrics"
	"github.com/clinicalaser/whatsapp-reminders/internal/model"
	"github.com/clinicalaser/whatsapp-reminders/internal/repo"
	"github.com/clinicalaser/whatsapp-reminders/internal/scheduler"
	"github.com/clinicalaser/whatsapp-reminders/internal/template"
	"github.com/clinicalaser/whatsapp-reminders/internal/whatsapp"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	setupLogger(cfg.Server.LogLevel)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("database unreachable: %v", err)
	}
	cancel()

	if err := repo.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}
	store := repo.NewPostgres(db)

	sentCache := buildCache(ctx, cfg.Redis)

	registry := prometheus.NewRegistry()
	m := metrics.NewReminderMetrics(registry)

	source := agenda.NewClient(agenda.Config{
		BaseURL:   cfg.Agenda.BaseURL,
		Username:  cfg.Agenda.Username,
		Password:  cfg.Agenda.Password,
		Sites:     cfg.Agenda.Sites,
		Doctors:   cfg.Agenda.Doctors,
		CallDelay: cfg.Agenda.CallDelay,
	})

	provider := buildProvider(cfg.WhatsApp)
	if !provider.Configured() {
		slog.Warn("whatsapp provider is not fully configured, sends will fail",
			"provider", provider.Name())
	}

	builder := template.NewBuilder(cfg.WhatsApp.TemplateName, cfg.Job.ContactNumbers...)

	runner := job.NewRunner(source, provider, store, sentCache, builder, job.Options{
		SendDelay: cfg.Job.SendDelay,
		Location:  loc,
		Metrics:   m,
	})
	runner.StartWorker(ctx)

	sched, err := scheduler.New(cfg.Scheduler.FireAt, loc, func(tickCtx context.Context) {
		if _, err := runner.Run(tickCtx, model.RunScheduled); err != nil && !errors.Is(err, job.ErrRunInProgress) {
			slog.Error("scheduled reminder run failed", "error", err)
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(runner, sched, store, provider, builder, m, cfg.WhatsApp.MetaVerifyToken, loc)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler, registry)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("reminder service listening",
			"addr", cfg.Server.Address,
			"provider", provider.Name(),
			"schedule", cfg.Scheduler.FireAt,
			"timezone", cfg.Scheduler.Timezone,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func buildCache(ctx context.Context, cfg config.RedisConfig) cache.SentCache {
	if !cfg.Enabled {
		return cache.Noop{}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, idempotence cache disabled", "error", err)
		return cache.Noop{}
	}
	return cache.NewRedisCache(rdb, cfg.TTL)
}

func buildProvider(cfg config.WhatsAppConfig) whatsapp.Provider {
	if cfg.Provider == "twilio" {
		return whatsapp.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	}
	return whatsapp.NewMetaClient(cfg.MetaAccessToken, cfg.MetaPhoneNumberID, cfg.MetaWABAID)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
