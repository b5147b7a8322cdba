package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSink публикует события в топик Kafka. Ключ сообщения — id группы,
// так события одной группы попадают в одну партицию и сохраняют порядок.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaSink — фабрика врайтера Kafka.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info("kafka event sink initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))
	return &KafkaSink{writer: w, logger: logger}
}

func (s *KafkaSink) Publish(ctx context.Context, e Event) error {
	raw, err := e.Encode()
	if err != nil {
		return err
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.GroupID),
		Value: raw,
		Time:  e.Time,
	})
	if err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	s.logger.Debug("event saved to kafka", zap.String("event_id", e.ID), zap.String("type", e.Type))
	return nil
}

// Close закрываем соединения с Kafka
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	s.logger.Info("kafka connections closed")
	return nil
}
