package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AuditRetention — сколько хранить дневные файлы аудита.
const AuditRetention = 30 * 24 * time.Hour

// Decode разбирает событие из JSON.
func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return Event{}, errors.New("decode event: missing id or type")
	}
	return e, nil
}

// AuditLog пишет события в дневные файлы (JSON lines) и удаляет старые.
// Русский комментарий: Один файл на день: <dir>/2006-01-02.log.
type AuditLog struct {
	dir       string
	retention time.Duration
	mu        sync.Mutex
	lastPrune time.Time
}

// NewAuditLog создаёт каталог аудита.
func NewAuditLog(dir string) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &AuditLog{dir: dir, retention: AuditRetention}, nil
}

// Write добавляет событие в файл дня now. Раз в сутки чистит старые файлы.
func (a *AuditLog) Write(e Event, now time.Time) error {
	line, err := e.Encode()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path := filepath.Join(a.dir, now.UTC().Format("2006-01-02")+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	_, err = f.Write(append(line, '\n'))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}

	if now.Sub(a.lastPrune) > 24*time.Hour {
		a.lastPrune = now
		a.prune(now)
	}
	return nil
}

func (a *AuditLog) prune(now time.Time) {
	files, err := os.ReadDir(a.dir)
	if err != nil {
		return
	}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(name, ".log"))
		if err != nil {
			continue
		}
		if now.Sub(day) > a.retention {
			os.Remove(filepath.Join(a.dir, name))
		}
	}
}

// ConsumeKafka читает события из топика и передаёт их в audit до отмены ctx.
// Битые сообщения пропускаются с предупреждением.
func ConsumeKafka(ctx context.Context, brokers []string, topic, groupID string, audit *AuditLog, logger *zap.Logger) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	logger.Info("consuming events from kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
		zap.String("group_id", groupID))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		e, err := Decode(msg.Value)
		if err != nil {
			logger.Warn("skipping malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		if err := audit.Write(e, time.Now()); err != nil {
			logger.Error("failed to write audit entry", zap.String("event_id", e.ID), zap.Error(err))
		}
	}
}
