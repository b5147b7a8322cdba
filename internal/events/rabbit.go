package events

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitSink публикует события в durable-очередь RabbitMQ.
// Русский комментарий: Соединение и канал открываются один раз и переиспользуются;
// если канал закрылся (рестарт брокера), он переоткрывается при следующей публикации.
type RabbitSink struct {
	url    string
	queue  string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitSink подключается к брокеру и объявляет очередь.
func NewRabbitSink(url, queue string, logger *zap.Logger) (*RabbitSink, error) {
	s := &RabbitSink{url: url, queue: queue, logger: logger}
	if err := s.connect(); err != nil {
		return nil, err
	}
	logger.Info("rabbitmq event sink initialized", zap.String("queue", queue))
	return s, nil
}

// connect вызывается под s.mu (или до того, как sink стал доступен другим горутинам).
func (s *RabbitSink) connect() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("error connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("error open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		s.queue, // имя
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("fail created queue: %w", err)
	}

	s.conn, s.ch = conn, ch
	return nil
}

func (s *RabbitSink) Publish(ctx context.Context, e Event) error {
	raw, err := e.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil || s.ch.IsClosed() {
		s.closeLocked()
		if err := s.connect(); err != nil {
			return err
		}
	}

	err = s.ch.PublishWithContext(ctx,
		"",      // exchange
		s.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Type:         e.Type,
			Timestamp:    e.Time,
			Body:         raw,
		},
	)
	if err != nil {
		return fmt.Errorf("publish error: %w", err)
	}
	return nil
}

func (s *RabbitSink) closeLocked() {
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *RabbitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.logger.Info("rabbitmq connections closed")
	return nil
}
