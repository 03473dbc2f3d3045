package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const outboxBatchSize = 50

// app holds the wired service graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *db.Pool
	rdb    *redis.Client
	kafka  *kafka.Writer

	api        *handlers.Handler
	sweeper    *lifecycle.Sweeper
	reconciler *lifecycle.Reconciler
	publisher  *outbox.Publisher

	otelShutdown func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := runtime.NewLogger(cfg.ServiceName, runtime.LogOptions{Level: cfg.LogLevel, File: cfg.LogFile})
	a := &app{cfg: cfg, logger: logger}

	shutdown, err := otelx.Setup(ctx, otelx.Config{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTELEndpoint,
		SampleRatio:  cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		a.otelShutdown = shutdown
	}

	if err := cfg.RequireDatabase(); err != nil {
		a.close()
		return nil, err
	}
	reminders, err := cfg.Reminders()
	if err != nil {
		a.close()
		return nil, err
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.pool = pool

	var locker lifecycle.Locker = lifecycle.NoopLocker{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		locker = lifecycle.NewRedisLocker(a.rdb)
	} else {
		logger.Warn("REDIS_URL not set; sweeps are not coordinated across replicas")
	}

	// A nil interface, not a typed nil, keeps the publisher idle.
	var writer outbox.MessageWriter
	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		a.kafka = kafkax.NewWriter(cfg.KafkaBrokers)
		writer = a.kafka
	} else {
		logger.Warn("KAFKA_BROKERS not set; notification events stay in the outbox")
	}

	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	appointments := storage.NewAppointmentRepository(pool)
	schedules := storage.NewScheduleRepository(pool)
	templates := storage.NewTemplateRepository(pool)
	settings := storage.NewSettingsRepository(pool)
	directory := storage.NewDirectory(pool)
	idempotency := storage.NewIdempotencyRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	templateSvc := availability.NewTemplateService(templates, pool, now)
	settingsSvc := availability.NewSettingsService(settings, templates, now)
	initializer := schedule.NewInitializer(schedules, settingsSvc, templateSvc, now, cfg.ScheduleLookback, logger)
	scheduleSvc := schedule.NewService(schedules, initializer, settingsSvc, pool, now, logger)
	notifier := notify.NewOutboxNotifier(outboxRepo, now)
	engine := booking.NewEngine(appointments, directory, settingsSvc, scheduleSvc, notifier, idempotency, pool, now, logger)

	a.api = handlers.New(engine, scheduleSvc, settingsSvc, templateSvc, directory, logger)
	a.sweeper = lifecycle.NewSweeper(appointments, notifier, pool, locker, now, logger, lifecycle.SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
		Reminders: reminders,
	})
	a.reconciler = lifecycle.NewReconciler(appointments, scheduleSvc, pool, now, logger, lifecycle.ReconcilerConfig{
		Interval:   cfg.ReconcileInterval,
		WindowDays: cfg.ReconcileWindowDays,
	})
	a.publisher = outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
		PollEvery: cfg.OutboxInterval,
		BatchSize: outboxBatchSize,
	})
	return a, nil
}

func (a *app) readyChecks() []runtime.ReadyCheck {
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(a.pool)}}
	if a.kafka != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(a.cfg.KafkaBrokers)})
	}
	if a.rdb != nil {
		rdb := a.rdb
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}

func (a *app) close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Error("kafka writer close failed", "err", err)
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.otelShutdown(ctx)
	}
}
