// Package metrics содержит Prometheus-метрики бота.
// Русский комментарий: У каждого инстанса свой registry, поэтому тесты не мешают друг другу.
// Лейблы ограничены фиксированными наборами значений (категория, команда, действие).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — набор счётчиков бота.
type Metrics struct {
	registry *prometheus.Registry

	Messages          *prometheus.CounterVec
	Commands          *prometheus.CounterVec
	ModerationActions *prometheus.CounterVec
	PriceLookups      *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
}

// New создаёт и регистрирует все метрики.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcbot_messages_total",
			Help: "Inbound group messages by classifier category.",
		}, []string{"category"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcbot_commands_total",
			Help: "Dispatched commands by keyword and result.",
		}, []string{"command", "result"}),
		ModerationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcbot_moderation_actions_total",
			Help: "Link moderation actions taken.",
		}, []string{"action"}),
		PriceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcbot_price_lookups_total",
			Help: "Price lookups by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcbot_http_requests_total",
			Help: "HTTP requests to the liveness listener.",
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		m.Messages,
		m.Commands,
		m.ModerationActions,
		m.PriceLookups,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry возвращает registry (для тестов).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Все методы ниже безопасны для nil-получателя: модули и тесты могут работать без метрик.

func (m *Metrics) ObserveMessage(category string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) ObserveModeration(action string) {
	if m == nil {
		return
	}
	m.ModerationActions.WithLabelValues(action).Inc()
}

func (m *Metrics) ObservePrice(result string) {
	if m == nil {
		return
	}
	m.PriceLookups.WithLabelValues(result).Inc()
}
