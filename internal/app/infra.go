package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abgdnv/shelfstock/internal/config"
	"github.com/abgdnv/shelfstock/internal/store"
	"github.com/abgdnv/shelfstock/pkg/bootstrap"
	"github.com/abgdnv/shelfstock/pkg/kafka"
	"github.com/abgdnv/shelfstock/pkg/messaging"
	natsclient "github.com/abgdnv/shelfstock/pkg/nats"
	"github.com/abgdnv/shelfstock/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

// NewStore opens the storage selected by storage.driver. The returned func releases it.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	case config.DriverPostgres:
		if cfg.Database.MigrateOnStart {
			if err := store.Migrate(cfg.Database.URL, logger); err != nil {
				return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		logger.Info("Successfully connected to the database!")
		return store.NewPgStore(dbPool), dbPool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewDiscountCache connects to Redis when the cache is enabled. It returns nil otherwise.
func NewDiscountCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.Cmdable, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	client, err := bootstrap.NewRedisClient(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Discount cache connected", "addr", cfg.Cache.Addr)
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", "error", err)
		}
	}, nil
}

// NewEventPublisher connects to the configured broker and guards it with retries and a circuit breaker.
// It returns nil when events.broker is none.
func NewEventPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (messaging.Publisher, func(), error) {
	var (
		next    messaging.Publisher
		release func()
	)
	switch cfg.Events.Broker {
	case config.BrokerNone, "":
		return nil, func() {}, nil
	case config.BrokerNATS:
		nc, err := natsclient.NewClient(cfg.Events.NATS.Url, cfg.Events.NATS.Timeout)
		if err != nil {
			return nil, nil, err
		}
		js, err := natsclient.NewJetStreamContext(nc)
		if err != nil {
			return nil, nil, err
		}
		if err := natsclient.EnsureStream(ctx, js, cfg.Events.NATS.Stream, messaging.StockLowSubject+".>"); err != nil {
			nc.Close()
			return nil, nil, err
		}
		next = natsclient.NewNatsPublisher(js)
		release = func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("Failed to drain NATS connection", "error", err)
			}
		}
	case config.BrokerKafka:
		producer := kafka.NewProducer(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, cfg.Events.Kafka.WriteTimeout)
		next = producer
		release = func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Failed to close kafka producer", "error", err)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown events broker %q", cfg.Events.Broker)
	}

	logger.Info("Event publisher ready", "broker", cfg.Events.Broker)
	breaker := resilience.NewCircuitBreaker("events-"+cfg.Events.Broker, cfg.Resilience.CircuitBreaker, logger)
	return resilience.NewPublisher(next, breaker, cfg.Resilience.Retry), release, nil
}
