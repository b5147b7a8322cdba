package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/config"
	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/httpserver"
	"github.com/flybasist/gcbot/internal/logx"
	"github.com/flybasist/gcbot/internal/metrics"
	"github.com/flybasist/gcbot/internal/telegram"
)

func main() {
	// Русский комментарий: Главная точка входа бота.
	// 1. Загружаем конфиг
	// 2. Инициализируем логгер
	// 3. Открываем хранилище (json / bolt / postgres + миграции)
	// 4. Поднимаем шину событий (log / kafka / rabbit)
	// 5. Создаём telebot.v3 адаптер с Long Polling
	// 6. Создаём модули и диспетчер
	// 7. Инициализируем модули (cron бэкапов)
	// 8. Запускаем HTTP (/, /health, /metrics) и polling
	// 9. Ждём SIGINT/SIGTERM или отзыва токена, затем graceful shutdown

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logx.NewLogger(cfg.LogLevel, cfg.LogPretty, logx.LogRotationConfig{
		Filename:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting gcbot",
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("events_sink", cfg.EventsSink),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Duration("polling_timeout", cfg.PollingTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing store...")
		if err := repo.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	bus, err := openEventBus(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("failed to close event sink", zap.Error(err))
		}
	}()

	m := metrics.New()

	adapter, err := telegram.New(telegram.Options{
		Token:          cfg.TelegramBotToken,
		PollingTimeout: cfg.PollingTimeout,
		MetadataTTL:    cfg.MetadataCacheTTL,
	}, repo, logger)
	if err != nil {
		return err
	}

	registry := core.NewRegistry(logger)
	modules := initModules(cfg, repo, bus, m, logger, registry)
	d := buildDispatcher(cfg, adapter.Session(), modules, registry, m, logger)

	if err := registry.InitAll(ctx); err != nil {
		return fmt.Errorf("failed to init modules: %w", err)
	}

	srv := httpserver.New(cfg.Port, httpserver.NewRouter(m, adapter.Connected), logger)
	srv.Start()

	adapter.Start(ctx, d.Handle)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-adapter.Fatal():
		// Отозванный токен: не переподключаемся
		runErr = fmt.Errorf("telegram session lost: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down bot...")
	adapter.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown http server", zap.Error(err))
	}

	logger.Info("shutting down modules...")
	if err := registry.ShutdownAll(); err != nil {
		logger.Error("failed to shutdown modules", zap.Error(err))
	}

	if shutdownCtx.Err() != nil {
		logger.Warn("shutdown timeout exceeded")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown timeout exceeded")
		}
	} else {
		logger.Info("bot shutdown complete")
	}
	return runErr
}
