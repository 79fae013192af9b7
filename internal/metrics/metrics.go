// ABOUTME: Prometheus collectors for upstream calls, chat turns, relay events and feedback
// ABOUTME: Implements the upstream and conversation observer hooks and serves /metrics

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "psychat"

// Latency buckets for LLM calls, 100ms to 2m.
var upstreamBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Collector owns a registry and every gateway metric.
type Collector struct {
	registry *prometheus.Registry

	upstreamDuration *prometheus.HistogramVec
	upstreamCalls    *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	turns            *prometheus.CounterVec
	relayEvents      *prometheus.CounterVec
	feedback         *prometheus.CounterVec
}

// New creates a Collector. A nil registry gets a fresh one with the
// process and Go runtime collectors attached.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream LLM calls.",
			Buckets:   upstreamBuckets,
		}, []string{"op"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream LLM calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Duration of chat turns including thread resolution.",
			Buckets:   upstreamBuckets,
		}, []string{"mode"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by dispatch mode and outcome.",
		}, []string{"mode", "outcome"}),
		relayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "relay_events_total",
			Help:      "Streamed relay events by type.",
		}, []string{"type"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "submissions_total",
			Help:      "Feedback submissions by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		c.upstreamDuration,
		c.upstreamCalls,
		c.turnDuration,
		c.turns,
		c.relayEvents,
		c.feedback,
	)
	return c
}

// ObserveUpstream records one upstream call.
func (c *Collector) ObserveUpstream(op, outcome string, elapsed time.Duration) {
	c.upstreamDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	c.upstreamCalls.WithLabelValues(op, outcome).Inc()
}

// ObserveTurn records one completed chat turn.
func (c *Collector) ObserveTurn(mode, outcome string, elapsed time.Duration) {
	c.turnDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	c.turns.WithLabelValues(mode, outcome).Inc()
}

// ObserveRelayEvent counts one relay event delivered to a client.
func (c *Collector) ObserveRelayEvent(eventType string) {
	c.relayEvents.WithLabelValues(eventType).Inc()
}

// ObserveFeedback counts a feedback submission: accepted, duplicate or error.
func (c *Collector) ObserveFeedback(result string) {
	c.feedback.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
