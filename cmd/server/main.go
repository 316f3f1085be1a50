package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eschandler "safecircle/internal/escalation/handler"
	notifhandler "safecircle/internal/notification/handler"
	"safecircle/internal/platform/config"
	"safecircle/internal/platform/httpserver"
	"safecircle/internal/platform/kafka"
	"safecircle/internal/platform/logger"
	"safecircle/internal/platform/middleware"
	"safecircle/internal/platform/postgres"
	"safecircle/internal/platform/redis"
	"safecircle/pkg/platform/audit"
	auditpublisher "safecircle/pkg/platform/audit/publisher"
	auditmemory "safecircle/pkg/platform/audit/store/memory"
	auditpostgres "safecircle/pkg/platform/audit/store/postgres"
	"safecircle/pkg/platform/httputil"
)

const (
	auditBuffer = 1024
	jwtIssuer   = "safecircle"
)

// main wires the escalation facade, the notification orchestrator and the
// HTTP surface, then blocks until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auditor := auditpublisher.NewPublisher(auditStore(deps.db),
		auditpublisher.WithAsyncBuffer(auditBuffer),
		auditpublisher.WithLogger(log),
	)
	defer auditor.Close()

	notifications, err := buildNotifications(cfg.Notification, deps, auditor, reg, log)
	if err != nil {
		return err
	}
	escalations, err := buildEscalations(ctx, cfg, deps, notifications.orchestrator, auditor, reg, log)
	if err != nil {
		return err
	}
	if err := notifications.scheduler.Start(ctx); err != nil {
		return err
	}

	validator := middleware.NewHS256Validator(cfg.Server.JWTSigningKey, jwtIssuer)
	router := newRouter(log, reg, deps, validator, escalations, notifications)

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting safecircle", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first, then stop producing new work, then let
	// in-flight notifications finish.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	escalations.Close()
	notifications.scheduler.Stop()
	if err := notifications.orchestrator.Close(shutdownCtx); err != nil {
		log.Error("notification drain incomplete", "error", err)
	}
	log.Info("shutdown complete")
	return nil
}

func newRouter(log *slog.Logger, reg *prometheus.Registry, in *infra, validator middleware.JWTValidator, escalations eschandler.Service, notifications *notificationStack) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Recover(log))
	router.Use(middleware.Logger(log))
	router.Get("/healthz", in.healthz)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	eschandler.New(escalations, log, validator).Register(router)
	notifhandler.New(notifications.orchestrator, notifications.preferences, log, validator, notifications.callbacks).Register(router)
	return router
}

// infra holds the optional backing services. Each is nil when unconfigured.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kafka.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	out := &infra{}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		out.db = db
		log.Info("postgres stores enabled")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		out.close(log)
		return nil, err
	}
	out.redis = rc
	if rc != nil {
		log.Info("redis rate limiter and digest queue enabled")
	}

	kc, err := kafka.New(cfg.Kafka)
	if err != nil {
		out.close(log)
		return nil, err
	}
	if kc != nil {
		if err := kc.EnsureTopic(ctx, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			log.Warn("kafka topic bootstrap failed", "topic", cfg.Kafka.Topic, "error", err)
		}
		out.kafka = kc
		log.Info("kafka event streaming enabled", "topic", cfg.Kafka.Topic)
	}
	return out, nil
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("postgres close failed", "error", err)
		}
	}
}

func (i *infra) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if i.db != nil {
		record("postgres", postgres.Ping(ctx, i.db))
	}
	if i.redis != nil {
		record("redis", i.redis.Health(ctx))
	}
	if i.kafka != nil {
		record("kafka", i.kafka.Health(ctx))
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, checks)
}

func auditStore(db *sql.DB) audit.Store {
	if db == nil {
		return auditmemory.NewInMemoryStore()
	}
	return auditpostgres.New(db)
}
