package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Русский комментарий: этот пакет инкапсулирует подключение к PostgreSQL.
// Схема создаётся пакетом migrations, запросы живут в postgresql/repositories.

// ConnectToBase — подключение к базе по DSN с ретраями пинга.
func ConnectToBase(ctx context.Context, dsn string, logger *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := PingWithRetry(ctx, db, 5, 2*time.Second, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// PingWithRetry пингует базу с ретраями.
// Русский комментарий: Используется при старте бота для гарантии что PostgreSQL доступен
// (в docker-compose база может подняться позже бота).
func PingWithRetry(ctx context.Context, db *sql.DB, maxRetries int, delay time.Duration, logger *zap.Logger) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lastErr = db.PingContext(ctx)
		if lastErr == nil {
			logger.Info("postgres connection established", zap.Int("attempt", i+1))
			return nil
		}

		logger.Warn("failed to ping postgres, retrying...",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(lastErr))

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
}
