package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCounters(t *testing.T) {
	m := New()

	m.ObserveMessage("command")
	m.ObserveMessage("command")
	m.ObserveCommand("tagall", "ok")
	m.ObserveModeration("deleted")
	m.ObservePrice("not_found")

	if got := testutil.ToFloat64(m.Messages.WithLabelValues("command")); got != 2 {
		t.Errorf("messages{command} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("tagall", "ok")); got != 1 {
		t.Errorf("commands{tagall,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModerationActions.WithLabelValues("deleted")); got != 1 {
		t.Errorf("moderation{deleted} = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveMessage("text")
	m.ObserveCommand("x", "ok")
	m.ObserveModeration("deleted")
	m.ObservePrice("ok")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObservePrice("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `gcbot_price_lookups_total{result="ok"} 1`) {
		t.Errorf("metrics output missing price counter:\n%s", rec.Body.String())
	}
}
