// Package events публикует доменные события бота (модерация, проекты, лимиты)
// во внешнюю шину: лог, Kafka или RabbitMQ.
// Русский комментарий: Ошибки публикации только логируются и никогда не доходят до пользователя.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Типы событий.
const (
	TypeAntilinkDeleted = "antilink_deleted"
	TypeAntilinkRemoved = "antilink_removed"
	TypeAntilinkManual  = "antilink_manual"
	TypeAntilinkToggled = "antilink_toggled"
	TypeProjectCreated  = "project_created"
	TypeProjectDeleted  = "project_deleted"
	TypeTopAdmitted     = "top_admitted"
	TypeTopRemoved      = "top_removed"
	TypeLimitExceeded   = "limit_exceeded"
	TypeGroupLocked     = "group_locked"
)

// Event — одно доменное событие.
type Event struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	GroupID string            `json:"group_id"`
	UserID  string            `json:"user_id,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Time    time.Time         `json:"time"`
}

// New создаёт событие с uuid и текущим временем.
func New(eventType, groupID, userID string, details map[string]string) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		GroupID: groupID,
		UserID:  userID,
		Details: details,
		Time:    time.Now().UTC(),
	}
}

// Encode сериализует событие в JSON (формат для Kafka и RabbitMQ).
func (e Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return raw, nil
}

// Sink — конкретный транспорт событий.
type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Bus — обёртка над Sink для модулей.
// Русский комментарий: Emit не возвращает ошибку: сбой шины событий не должен ломать команду.
type Bus struct {
	sink   Sink
	logger *zap.Logger
}

// NewBus создаёт шину поверх sink.
func NewBus(sink Sink, logger *zap.Logger) *Bus {
	return &Bus{sink: sink, logger: logger}
}

// Emit публикует событие. Безопасно для nil-получателя.
func (b *Bus) Emit(ctx context.Context, eventType, groupID, userID string, details map[string]string) {
	if b == nil || b.sink == nil {
		return
	}
	e := New(eventType, groupID, userID, details)
	if err := b.sink.Publish(ctx, e); err != nil {
		b.logger.Warn("failed to publish event",
			zap.String("type", eventType),
			zap.String("chat_id", groupID),
			zap.Error(err))
	}
}

// Close закрывает sink.
func (b *Bus) Close() error {
	if b == nil || b.sink == nil {
		return nil
	}
	return b.sink.Close()
}

// LogSink пишет события в zap-логгер (значение по умолчанию EVENTS_SINK=log).
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, e Event) error {
	s.logger.Info("event",
		zap.String("event_id", e.ID),
		zap.String("type", e.Type),
		zap.String("chat_id", e.GroupID),
		zap.String("user_id", e.UserID),
		zap.Any("details", e.Details))
	return nil
}

func (s *LogSink) Close() error { return nil }
