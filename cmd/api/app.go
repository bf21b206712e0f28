package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/config"
	"github.com/mateatletas/payments/internal/domain"
	"github.com/mateatletas/payments/internal/payment"
	"github.com/mateatletas/payments/internal/platform/backoffice"
	"github.com/mateatletas/payments/internal/platform/memory"
	"github.com/mateatletas/payments/internal/platform/mercadopago"
	"github.com/mateatletas/payments/internal/platform/postgres"
	"github.com/mateatletas/payments/internal/platform/rabbitmq"
	redisdedup "github.com/mateatletas/payments/internal/platform/redis"
)

// app holds the wired service and everything that must be closed on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	service  *payment.Service
	sweeper  *payment.OverdueSweeper
	closers  []func()
}

// newApp wires up dependencies (manual dependency injection).
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// Infrastructure Layer
	memberships, enrollments, err := a.storage(ctx, migrate)
	if err != nil {
		return nil, err
	}

	gateway, err := mercadopago.NewAdapter(mercadopago.Options{
		AccessToken: cfg.MercadoPago.AccessToken,
		Timeout:     cfg.MercadoPago.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	coreClient := backoffice.NewClient(cfg.Core.BaseURL, cfg.Core.APIKey)

	// Service Layer
	a.service = payment.NewService(payment.Deps{
		Memberships: memberships,
		Enrollments: enrollments,
		Catalog:     coreClient, // implements domain.ProductCatalog
		Directory:   coreClient, // implements domain.Directory
		Gateway:     gateway,
		Builder: mercadopago.PreferenceBuilder{
			BackendURL:          cfg.BackendURL,
			FrontendURL:         cfg.FrontendURL,
			StatementDescriptor: cfg.MercadoPago.StatementDescriptor,
			Currency:            cfg.MercadoPago.Currency,
		},
		Mock:         mercadopago.NewMockPreferences(cfg.FrontendURL),
		Events:       a.publisher(),
		Deduplicator: a.deduplicator(ctx),
		Metrics:      payment.NewMetrics(a.registry),
		Logger:       logger,
		Environment:  cfg.Env,
	})
	a.sweeper = payment.NewOverdueSweeper(a.service.Memberships(), logger)

	ok = true
	return a, nil
}

func (a *app) storage(ctx context.Context, migrate bool) (domain.MembershipRepository, domain.EnrollmentRepository, error) {
	if a.cfg.Database.Driver == config.StorageMemory {
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return memory.NewMembershipStore(), memory.NewEnrollmentStore(), nil
	}

	db, err := postgres.Open(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() { db.Close() })

	if migrate {
		if err := postgres.Migrate(db, a.logger); err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	memberships, err := postgres.NewMembershipStore(db)
	if err != nil {
		return nil, nil, err
	}
	enrollments, err := postgres.NewEnrollmentStore(db)
	if err != nil {
		return nil, nil, err
	}
	return memberships, enrollments, nil
}

// publisher falls back to logging when RabbitMQ is absent or unreachable.
func (a *app) publisher() domain.EventPublisher {
	fallback := rabbitmq.Fallback{Logger: a.logger.Named("events")}
	if a.cfg.RabbitMQ.URL == "" {
		return fallback
	}
	pub, err := rabbitmq.NewPublisher(a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Exchange, a.logger)
	if err != nil {
		a.logger.Warn("rabbitmq unavailable, lifecycle events will only be logged", zap.Error(err))
		return fallback
	}
	a.closers = append(a.closers, pub.Close)
	return pub
}

// deduplicator falls back to process memory when Redis is absent or unreachable.
func (a *app) deduplicator(ctx context.Context) domain.WebhookDeduplicator {
	if a.cfg.Redis.URL == "" {
		return memory.NewDeduplicator()
	}
	client, err := redisdedup.NewClient(ctx, a.cfg.Redis.URL)
	if err != nil {
		a.logger.Warn("redis unavailable, webhook idempotency kept in memory", zap.Error(err))
		return memory.NewDeduplicator()
	}
	a.closers = append(a.closers, func() { client.Close() })
	return redisdedup.NewDeduplicator(client, "")
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
