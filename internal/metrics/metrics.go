// Package metrics exposes Prometheus instrumentation for the broker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the broker's Prometheus collectors. Each engine owns its own
// registry so tests can build engines side by side without collector name
// collisions.
type Metrics struct {
	registry *prometheus.Registry

	// Submission metrics
	messagesSubmitted *prometheus.CounterVec
	messagesRejected  *prometheus.CounterVec

	// Lifecycle metrics
	messagesCompleted prometheus.Counter
	messagesFailed    prometheus.Counter
	messagesCancelled prometheus.Counter

	// Live state
	queueDepth         prometheus.Gauge
	processingInFlight prometheus.Gauge
	streamSubscribers  prometheus.Gauge

	// Latency metrics
	processingDuration prometheus.Histogram
	queueWaitDuration  prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		messagesSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentq_messages_submitted_total",
			Help: "Messages accepted into the queue, by priority",
		}, []string{"priority"}),
		messagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentq_messages_rejected_total",
			Help: "Submissions rejected before enqueue, by reason",
		}, []string{"reason"}),

		messagesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentq_messages_completed_total",
			Help: "Messages that reached the completed state",
		}),
		messagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentq_messages_failed_total",
			Help: "Messages that reached the failed state",
		}),
		messagesCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentq_messages_cancelled_total",
			Help: "Messages cancelled while queued",
		}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentq_queue_depth",
			Help: "Messages currently waiting in the queue",
		}),
		processingInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentq_processing_in_flight",
			Help: "Messages currently being processed (0 or 1)",
		}),
		streamSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentq_stream_subscribers",
			Help: "Live stream subscribers across all messages",
		}),

		processingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentq_processing_duration_seconds",
			Help:    "Wall-clock time from dispatch to terminal state",
			Buckets: prometheus.DefBuckets,
		}),
		queueWaitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentq_queue_wait_seconds",
			Help:    "Time messages spend waiting before dispatch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageSubmitted records an accepted submission.
func (m *Metrics) MessageSubmitted(priority string) {
	m.messagesSubmitted.WithLabelValues(priority).Inc()
}

// MessageRejected records a refused submission.
func (m *Metrics) MessageRejected(reason string) {
	m.messagesRejected.WithLabelValues(reason).Inc()
}

// MessageCompleted records a completion with its processing duration.
func (m *Metrics) MessageCompleted(seconds float64) {
	m.messagesCompleted.Inc()
	m.processingDuration.Observe(seconds)
}

// MessageFailed records a failure with its processing duration.
func (m *Metrics) MessageFailed(seconds float64) {
	m.messagesFailed.Inc()
	m.processingDuration.Observe(seconds)
}

// MessageCancelled records a queued-message cancellation.
func (m *Metrics) MessageCancelled() {
	m.messagesCancelled.Inc()
}

// QueueWait records how long a message waited before dispatch.
func (m *Metrics) QueueWait(seconds float64) {
	m.queueWaitDuration.Observe(seconds)
}

// SetQueueDepth updates the waiting-message gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetProcessingInFlight updates the in-flight gauge.
func (m *Metrics) SetProcessingInFlight(n int) {
	m.processingInFlight.Set(float64(n))
}

// SetStreamSubscribers updates the subscriber gauge.
func (m *Metrics) SetStreamSubscribers(n int) {
	m.streamSubscribers.Set(float64(n))
}
