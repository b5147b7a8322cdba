package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/store"
)

// LimitRepository — репозиторий счётчиков использования (таблица rate_counters)
type LimitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLimitRepository создаёт новый экземпляр репозитория лимитов
func NewLimitRepository(db *sql.DB, logger *zap.Logger) *LimitRepository {
	return &LimitRepository{
		db:     db,
		logger: logger,
	}
}

// CheckAndIncrement проверяет лимит и увеличивает счётчик использования.
// Русский комментарий: Вся операция в одной транзакции с блокировкой строки (FOR UPDATE),
// поэтому два одновременных запроса одного пользователя не проскочат лимит.
// Возвращает: (счётчик после операции, разрешено ли, ошибка)
func (r *LimitRepository) CheckAndIncrement(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (store.RateCounter, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return store.RateCounter{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Создаём запись лениво, если пользователя ещё нет
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_counters (user_id, count, last_reset)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return store.RateCounter{}, false, fmt.Errorf("ensure counter: %w", err)
	}

	c := store.RateCounter{UserID: userID}
	err = tx.QueryRowContext(ctx, `
		SELECT count, last_reset FROM rate_counters WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&c.Count, &c.LastReset)
	if err != nil {
		return store.RateCounter{}, false, fmt.Errorf("lock counter: %w", err)
	}

	next, allowed := store.ApplyRateHit(c, now, window, limit)
	if !allowed {
		r.logger.Info("usage limit exceeded",
			zap.String("user_id", userID),
			zap.Int("used", next.Count),
			zap.Int("limit", limit),
		)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rate_counters SET count = $2, last_reset = $3 WHERE user_id = $1
	`, userID, next.Count, next.LastReset)
	if err != nil {
		return store.RateCounter{}, false, fmt.Errorf("update counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return store.RateCounter{}, false, fmt.Errorf("commit counter: %w", err)
	}
	return next, allowed, nil
}
