// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	queueDepth      prometheus.Gauge
	connections     prometheus.Gauge
	backpressure    prometheus.Counter
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	malformed       prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentlink_commands_total",
				Help: "Commands that reached a terminal outcome",
			},
			[]string{"command", "context", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentlink_command_duration_seconds",
				Help:    "Time from submission to terminal outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentlink_mainloop_queue_depth",
			Help: "Tasks waiting for the mutation context",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentlink_connections",
			Help: "Live agent connections",
		}),
		backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentlink_backpressure_total",
			Help: "Requests rejected by the per-connection in-flight cap",
		}),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentlink_events_published_total",
				Help: "Host events offered to subscribers",
			},
			[]string{"topic"},
		),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentlink_events_dropped_total",
			Help: "Events dropped from full connection write queues",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentlink_malformed_total",
			Help: "Inbound frames rejected by the codec",
		}),
	}
	m.registry.MustRegister(
		m.commands, m.commandDuration, m.queueDepth, m.connections,
		m.backpressure, m.eventsPublished, m.eventsDropped, m.malformed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CommandCompleted records one terminal outcome.
func (m *Metrics) CommandCompleted(command, context, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, context, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// QueueDepth implements mainloop.Observer.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ConnectionOpened increments the live connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the live connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// Backpressure counts one rejected request.
func (m *Metrics) Backpressure() {
	if m == nil {
		return
	}
	m.backpressure.Inc()
}

// EventPublished counts one event offered to subscribers.
func (m *Metrics) EventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic).Inc()
}

// EventDropped counts one event evicted from a write queue.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Malformed counts one rejected inbound frame.
func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}
