package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	escmetrics "safecircle/internal/escalation/metrics"
	escmodels "safecircle/internal/escalation/models"
	"safecircle/internal/escalation/ports"
	"safecircle/internal/escalation/publisher"
	"safecircle/internal/escalation/service"
	"safecircle/internal/escalation/statemachine"
	escstore "safecircle/internal/escalation/store"
	"safecircle/internal/notification/digest"
	"safecircle/internal/notification/dispatch"
	notifmetrics "safecircle/internal/notification/metrics"
	"safecircle/internal/notification/models"
	"safecircle/internal/notification/orchestrator"
	"safecircle/internal/notification/preferences"
	"safecircle/internal/notification/ratelimit"
	notifstore "safecircle/internal/notification/store"
	"safecircle/internal/notification/transport"
	"safecircle/internal/platform/config"
	"safecircle/pkg/platform/circuit"
)

type notificationStack struct {
	orchestrator *orchestrator.Orchestrator
	preferences  preferenceStore
	scheduler    *digest.Scheduler
	callbacks    transport.CallbackKeys
}

// preferenceStore is the read/write preference store served over HTTP.
type preferenceStore interface {
	orchestrator.PreferenceStore
	Put(ctx context.Context, prefs *models.Preferences) error
}

func buildNotifications(cfg config.NotificationConfig, in *infra, auditor orchestrator.AuditPublisher, reg prometheus.Registerer, log *slog.Logger) (*notificationStack, error) {
	m := notifmetrics.New(reg)

	var (
		records orchestrator.RecordStore
		prefs   preferenceStore
	)
	if in.db != nil {
		records = notifstore.NewPostgres(in.db)
		prefs = preferences.NewPostgresStore(in.db)
	} else {
		records = notifstore.NewInMemoryStore()
		prefs = preferences.NewInMemoryStore()
	}

	var (
		limiterStore ratelimit.Store
		queue        orchestrator.DigestQueue
	)
	if in.redis != nil {
		limiterStore = ratelimit.NewRedisStore(in.redis.Client)
		queue = digest.NewRedisQueue(in.redis.Client, "")
	} else {
		limiterStore = ratelimit.NewInMemoryStore(nil)
		queue = digest.NewInMemoryQueue()
	}
	limits := make(map[models.Channel]models.RateLimit, len(cfg.ChannelLimits))
	for name, l := range cfg.ChannelLimits {
		ch, err := models.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("notification channel limit: %w", err)
		}
		limits[ch] = models.RateLimit{Max: l.Max, Window: l.Window}
	}

	// Provider integrations are out of scope; every channel logs instead.
	mux := transport.NewMux()
	devTransport := transport.NewLogTransport(log)
	for _, ch := range models.AllChannels {
		mux.Handle(ch, devTransport)
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithPolicy(dispatch.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BackoffBase: cfg.BackoffBase,
			BackoffMax:  cfg.BackoffMax,
			SendTimeout: cfg.SendTimeout,
		}),
		dispatch.WithMetrics(m),
		dispatch.WithLogger(log),
	}
	for _, ch := range models.AllChannels {
		dispatchOpts = append(dispatchOpts, dispatch.WithBreaker(ch, circuit.New(string(ch),
			circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
			circuit.WithCooldown(cfg.Breaker.Cooldown),
		)))
	}
	for name, qps := range cfg.ChannelQPS {
		ch, err := models.ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("notification channel qps: %w", err)
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithChannelQPS(ch, qps))
	}

	orch, err := orchestrator.New(records, dispatch.New(mux, dispatchOpts...),
		orchestrator.WithPreferences(prefs),
		orchestrator.WithLimiter(ratelimit.NewLimiter(limiterStore, limits)),
		orchestrator.WithDigestQueue(queue),
		orchestrator.WithAuditPublisher(auditor),
		orchestrator.WithMetrics(m),
		orchestrator.WithLogger(log),
		orchestrator.WithShards(cfg.Shards),
	)
	if err != nil {
		return nil, err
	}
	scheduler, err := digest.NewScheduler(orch, cfg.DigestSchedules, digest.WithLogger(log))
	if err != nil {
		return nil, err
	}
	callbacks, err := transport.ParseCallbackKeys(cfg.CallbackKeyHashes)
	if err != nil {
		return nil, err
	}
	return &notificationStack{orchestrator: orch, preferences: prefs, scheduler: scheduler, callbacks: callbacks}, nil
}

func buildEscalations(ctx context.Context, cfg config.Config, in *infra, dispatcher ports.Dispatcher, auditor ports.AuditPublisher, reg prometheus.Registerer, log *slog.Logger) (*service.Service, error) {
	var store ports.Store
	if in.db != nil {
		store = escstore.NewPostgres(in.db)
	} else {
		store = escstore.NewInMemoryStore()
	}

	var machineOpts []statemachine.Option
	for name, levelName := range cfg.Escalation.StartingLevels {
		c, err := escmodels.ParseContext(name)
		if err != nil {
			return nil, fmt.Errorf("starting level: %w", err)
		}
		level, err := escmodels.ParseLevel(levelName)
		if err != nil {
			return nil, fmt.Errorf("starting level: %w", err)
		}
		machineOpts = append(machineOpts, statemachine.WithStartingLevel(c, level))
	}
	sla := make(map[escmodels.Severity]time.Duration, len(cfg.Escalation.AcknowledgmentSLA))
	for name, d := range cfg.Escalation.AcknowledgmentSLA {
		sev, err := escmodels.ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("acknowledgment sla: %w", err)
		}
		sla[sev] = d
	}

	opts := []service.Option{
		service.WithMachine(statemachine.New(machineOpts...)),
		service.WithDispatcher(dispatcher),
		service.WithAuditPublisher(auditor),
		service.WithMetrics(escmetrics.New(reg)),
		service.WithLogger(log),
		service.WithAcknowledgmentSLA(sla),
		service.WithConflictRetries(cfg.Escalation.ConflictRetries),
	}
	if in.kafka != nil {
		opts = append(opts, service.WithEventPublisher(
			publisher.NewKafkaPublisher(in.kafka, cfg.Kafka.Topic, publisher.WithLogger(log)),
		))
	}
	svc, err := service.New(store, opts...)
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "escalation service ready", "stores", storeKind(in))
	return svc, nil
}

func storeKind(in *infra) string {
	if in.db != nil {
		return "postgres"
	}
	return "memory"
}
