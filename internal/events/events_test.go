package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{ calls int }

func (s *failingSink) Publish(context.Context, Event) error {
	s.calls++
	return errors.New("broker down")
}

func (s *failingSink) Close() error { return nil }

func TestNewEventHasIDAndTime(t *testing.T) {
	e := New(TypeProjectCreated, "g1", "u1", map[string]string{"project_id": "12345"})
	if e.ID == "" || e.Time.IsZero() {
		t.Fatalf("event not initialized: %+v", e)
	}
	if other := New(TypeProjectCreated, "g1", "u1", nil); other.ID == e.ID {
		t.Error("event ids must be unique")
	}

	raw, err := e.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["type"] != TypeProjectCreated || decoded["group_id"] != "g1" {
		t.Errorf("unexpected payload: %s", raw)
	}
}

func TestBusLogsPublishFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &failingSink{}
	bus := NewBus(sink, zap.New(core))

	bus.Emit(context.Background(), TypeAntilinkDeleted, "g1", "u1", nil)

	if sink.calls != 1 {
		t.Errorf("expected one publish attempt, got %d", sink.calls)
	}
	if logs.FilterMessage("failed to publish event").Len() != 1 {
		t.Error("publish failure was not logged")
	}
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Emit(context.Background(), TypeTopAdmitted, "g1", "u1", nil)
	if err := bus.Close(); err != nil {
		t.Errorf("Close on nil bus: %v", err)
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	if err := sink.Publish(context.Background(), New(TypeTopAdmitted, "g1", "u1", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	entries := logs.FilterMessage("event").All()
	if len(entries) != 1 || entries[0].ContextMap()["type"] != TypeTopAdmitted {
		t.Errorf("unexpected log entries: %+v", entries)
	}
}
