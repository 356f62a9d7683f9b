package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_total",
		Help: "Количество обработанных событий шлюза",
	}, []string{"event"})

	GatewayEventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_dropped_total",
		Help: "Количество отброшенных событий шлюза",
	}, []string{"event", "reason"})

	QuoteCandidateSwaps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quote_candidate_swaps_total",
		Help: "Сколько раз кандидат на цитату был создан или заменён",
	})

	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_publish_total",
		Help: "Количество публикаций цитаты дня",
	}, []string{"kind", "status"})

	SchedulerFires = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_fires_total",
		Help: "Срабатывания заданий планировщика",
	}, []string{"kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		GatewayEventsTotal,
		GatewayEventsDropped,
		QuoteCandidateSwaps,
		PublishTotal,
		SchedulerFires,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncGatewayEvent увеличивает счётчик обработанных событий.
func IncGatewayEvent(event string) {
	GatewayEventsTotal.WithLabelValues(event).Inc()
}

// IncGatewayDropped увеличивает счётчик отброшенных событий.
func IncGatewayDropped(event, reason string) {
	GatewayEventsDropped.WithLabelValues(event, reason).Inc()
}

// IncPublish увеличивает счётчик публикаций.
func IncPublish(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PublishTotal.WithLabelValues(kind, status).Inc()
}
