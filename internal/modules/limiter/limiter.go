// Package limiter — дневной лимит запросов на пользователя.
// Русский комментарий: Счётчик хранится в store (переживает рестарт),
// проверка и инкремент выполняются одной атомарной операцией хранилища.
package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/events"
	"github.com/flybasist/gcbot/internal/store"
)

// Window — окно сброса счётчика.
const Window = 24 * time.Hour

// Decision — результат проверки лимита.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
}

// RefusalText — текст отказа для пользователя.
func (d Decision) RefusalText() string {
	return fmt.Sprintf("⛔ Daily lookup limit reached (%d/%d). Try again later.", d.Used, d.Limit)
}

// Limiter ограничивает число запросов пользователя за окно.
type Limiter struct {
	repo   store.Repository
	limit  int
	window time.Duration
	now    func() time.Time
	bus    *events.Bus
	logger *zap.Logger
}

// New создаёт лимитер. limit <= 0 отключает ограничение.
func New(repo store.Repository, limit int, bus *events.Bus, logger *zap.Logger) *Limiter {
	return &Limiter{
		repo:   repo,
		limit:  limit,
		window: Window,
		now:    time.Now,
		bus:    bus,
		logger: logger,
	}
}

// Allow учитывает один запрос пользователя userID.
// Русский комментарий: Ошибка хранилища возвращается вызывающему, запрос при этом не выполняется.
func (l *Limiter) Allow(ctx context.Context, groupID, userID string) (Decision, error) {
	if l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	counter, allowed, err := l.repo.HitRateCounter(ctx, userID, l.now(), l.window, l.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("hit rate counter: %w", err)
	}

	d := Decision{Allowed: allowed, Used: counter.Count, Limit: l.limit}
	if !allowed {
		l.logger.Info("daily limit reached",
			zap.String("chat_id", groupID),
			zap.String("user_id", userID),
			zap.Int("limit", l.limit))
		l.bus.Emit(ctx, events.TypeLimitExceeded, groupID, userID,
			map[string]string{"limit": fmt.Sprint(l.limit)})
	}
	return d, nil
}
