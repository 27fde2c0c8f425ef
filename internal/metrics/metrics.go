package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_events_published_total",
			Help: "Total number of events accepted for dispatch.",
		},
		[]string{"event_type"},
	)

	FanoutTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_fanout_tasks_total",
			Help: "Total number of delivery tasks emitted by the fan-out stage.",
		},
		[]string{"event_type"},
	)

	FanoutSubscribers = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_fanout_subscribers",
			Help:    "Subscriber count per fanned-out event.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome"}, // delivered, failed_http, failed_transport
	)

	DeliveryLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_delivery_latency_seconds",
			Help:    "Latency of outbound webhook calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RedeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_redeliveries_total",
			Help: "Total number of broker redeliveries by reason.",
		},
		[]string{"reason"}, // e.g. lookup_error, publish_error, ledger_error
	)

	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_dlq_total",
			Help: "Total number of messages moved to a DLQ by stage.",
		},
		[]string{"stage"}, // fanout, worker
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsPublishedTotal,
		FanoutTasksTotal,
		FanoutSubscribers,
		DeliveriesTotal,
		DeliveryLatencySeconds,
		RedeliveriesTotal,
		DLQTotal,
	)
}

// RecordEventPublished increments the published-events counter.
func RecordEventPublished(eventType string) {
	EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordFanout records one fan-out pass: n tasks emitted for one event.
func RecordFanout(eventType string, n int) {
	FanoutTasksTotal.WithLabelValues(eventType).Add(float64(n))
	FanoutSubscribers.Observe(float64(n))
}

// RecordDelivery records one completed delivery attempt by outcome.
func RecordDelivery(outcome string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
	if latency > 0 {
		DeliveryLatencySeconds.Observe(latency.Seconds())
	}
}

// RecordRedelivery records a requeue by reason.
func RecordRedelivery(reason string) {
	RedeliveriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ records a message moved to a dead-letter topic.
func RecordDLQ(stage string) {
	DLQTotal.WithLabelValues(stage).Inc()
}
