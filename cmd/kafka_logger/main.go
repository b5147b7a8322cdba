package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flybasist/gcbot/internal/config"
	"github.com/flybasist/gcbot/internal/events"
	"github.com/flybasist/gcbot/internal/logx"
)

// Русский комментарий: Отдельный процесс-аудитор. Читает события бота из Kafka
// (KAFKA_BROKERS, KAFKA_TOPIC) и пишет их в дневные файлы AUDIT_DIR.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadKafka()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logx.NewLogger(cfg.LogLevel, cfg.LogPretty, logx.LogRotationConfig{})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	audit, err := events.NewAuditLog(cfg.AuditDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return events.ConsumeKafka(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, "gcbot-audit", audit, logger)
}
