// Package metrics exposes the service's Prometheus collectors.
//
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	resolves             *prometheus.CounterVec
	conversationsCreated prometheus.Counter
	messagesSent         prometheus.Counter
	partialWrites        *prometheus.CounterVec
	readStateUpdates     prometheus.Counter
	feedDrops            *prometheus.CounterVec
	bridgeEvents         *prometheus.CounterVec
	openWatches          prometheus.Gauge
	wsSessions           prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		resolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "resolves_total",
			Help: "Conversation resolutions by result (found, created, error).",
		}, []string{"result"}),
		conversationsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "conversations_created_total",
			Help: "Conversations created by the resolver.",
		}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "messages_sent_total",
			Help: "Messages persisted.",
		}),
		partialWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "partial_writes_total",
			Help: "Multi-document operations that left some writes undone.",
		}, []string{"op"}),
		readStateUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "readstate_updates_total",
			Help: "Messages whose readBy set grew.",
		}),
		feedDrops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "drops_total",
			Help: "Events dropped for slow subscribers.",
		}, []string{"collection"}),
		bridgeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "events_total",
			Help: "Feed events seen by bridge watches, by outcome (matched, discarded).",
		}, []string{"collection", "action", "result"}),
		openWatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "open_watches",
			Help: "Subscribed bridge watches.",
		}),
		wsSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "sessions",
			Help: "Open websocket sessions.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Resolve(result string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(result).Inc()
}

func (m *Metrics) ConversationCreated() {
	if m == nil {
		return
	}
	m.conversationsCreated.Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) PartialWrite(op string) {
	if m == nil {
		return
	}
	m.partialWrites.WithLabelValues(op).Inc()
}

func (m *Metrics) ReadStateUpdated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.readStateUpdates.Add(float64(n))
}

func (m *Metrics) FeedDrop(collection string) {
	if m == nil {
		return
	}
	m.feedDrops.WithLabelValues(collection).Inc()
}

func (m *Metrics) BridgeEvent(collection, action, result string) {
	if m == nil {
		return
	}
	m.bridgeEvents.WithLabelValues(collection, action, result).Inc()
}

func (m *Metrics) WatchOpened() {
	if m == nil {
		return
	}
	m.openWatches.Inc()
}

func (m *Metrics) WatchClosed() {
	if m == nil {
		return
	}
	m.openWatches.Dec()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.wsSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.wsSessions.Dec()
}
