package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/config"
	"github.com/flybasist/gcbot/internal/events"
	"github.com/flybasist/gcbot/internal/migrations"
	"github.com/flybasist/gcbot/internal/postgresql"
	"github.com/flybasist/gcbot/internal/postgresql/repositories"
	"github.com/flybasist/gcbot/internal/store"
	"github.com/flybasist/gcbot/internal/store/boltstore"
	"github.com/flybasist/gcbot/internal/store/jsonstore"
)

// openStore открывает хранилище по STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, error) {
	switch cfg.StoreDriver {
	case "json":
		repo, err := jsonstore.Open(cfg.StorePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open json store: %w", err)
		}
		return repo, nil

	case "bolt":
		repo, err := boltstore.Open(cfg.BoltPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		return repo, nil

	case "postgres":
		db, err := postgresql.ConnectToBase(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		logger.Info("connected to postgresql")

		// Автоматически применяем миграции (или валидируем существующую схему)
		if err := migrations.RunMigrationsIfNeeded(db, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		logger.Info("database schema ready")
		return repositories.NewStore(db, logger), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openEventBus создаёт шину событий по EVENTS_SINK.
func openEventBus(cfg *config.Config, logger *zap.Logger) (*events.Bus, error) {
	var sink events.Sink
	switch cfg.EventsSink {
	case "kafka":
		sink = events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case "rabbit":
		s, err := events.NewRabbitSink(cfg.RabbitURL, cfg.RabbitQueue, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		sink = s
	default:
		sink = events.NewLogSink(logger)
	}
	return events.NewBus(sink, logger), nil
}
