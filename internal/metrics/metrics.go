// ABOUTME: Prometheus collectors for requests, engine calls, the event feed, and the hub
// ABOUTME: All recording methods are nil-safe so components work with metrics disabled

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dock_gateway"

// Metrics holds every collector exported by the gateway.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec
	EngineErrorsTotal  *prometheus.CounterVec
	EventsReceived     prometheus.Counter
	EventsSkipped      *prometheus.CounterVec
	StreamReconnects   prometheus.Counter
	StreamState        prometheus.Gauge
	Subscribers        prometheus.Gauge
	SubscriberDrops    *prometheus.CounterVec
	MessagesBroadcast  prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by request type and status code",
			},
			[]string{"type", "code"},
		),

		EngineCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "call_duration_seconds",
				Help:      "Engine call latency by operation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		EngineErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Engine call failures by operation and kind (unreachable, rejected, decode)",
			},
			[]string{"operation", "kind"},
		),

		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Engine events decoded and handed to the hub",
		}),

		EventsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "skipped_total",
				Help:      "Engine event records not relayed, by reason (decode, duplicate)",
			},
			[]string{"reason"},
		),

		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "reconnects_total",
			Help:      "Event feed reconnect attempts",
		}),

		StreamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stream_state",
			Help:      "Event feed state (0=disconnected, 1=connecting, 2=streaming)",
		}),

		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Connected WebSocket subscribers",
		}),

		SubscriberDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hub",
				Name:      "subscriber_drops_total",
				Help:      "Subscribers removed by the hub, by reason (send_failed, queue_full, closed)",
			},
			[]string{"reason"},
		),

		MessagesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Events fanned out by the hub",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.EngineCallDuration,
		m.EngineErrorsTotal,
		m.EventsReceived,
		m.EventsSkipped,
		m.StreamReconnects,
		m.StreamState,
		m.Subscribers,
		m.SubscriberDrops,
		m.MessagesBroadcast,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(typ, code string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(typ, code).Inc()
}

// ObserveEngineCall records the latency of one engine call and, if it failed, its error kind.
func (m *Metrics) ObserveEngineCall(operation string, d time.Duration, errKind string) {
	if m == nil {
		return
	}
	m.EngineCallDuration.WithLabelValues(operation).Observe(d.Seconds())
	if errKind != "" {
		m.EngineErrorsTotal.WithLabelValues(operation, errKind).Inc()
	}
}

// EventReceived counts one relayed event.
func (m *Metrics) EventReceived() {
	if m == nil {
		return
	}
	m.EventsReceived.Inc()
}

// EventSkipped counts one event record that was not relayed.
func (m *Metrics) EventSkipped(reason string) {
	if m == nil {
		return
	}
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

// Reconnect counts one event feed reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

// SetStreamState records the event feed state as its numeric value.
func (m *Metrics) SetStreamState(state int) {
	if m == nil {
		return
	}
	m.StreamState.Set(float64(state))
}

// SetSubscribers records the current hub size.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// SubscriberDropped counts one subscriber removal.
func (m *Metrics) SubscriberDropped(reason string) {
	if m == nil {
		return
	}
	m.SubscriberDrops.WithLabelValues(reason).Inc()
}

// Broadcast counts one fan-out pass.
func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.MessagesBroadcast.Inc()
}
