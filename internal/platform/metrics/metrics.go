// Package metrics provides Prometheus instrumentation for both binaries.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	sessionWrites    *prometheus.CounterVec
	changeEvents     *prometheus.CounterVec
	outboxPublished  *prometheus.CounterVec
	idleSignOuts     prometheus.Counter
	websocketClients prometheus.Gauge
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sessionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_session_writes_total",
			Help:      "Trade session rows written, by change type.",
		}, []string{"change_type"}),
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_change_events_total",
			Help:      "Session change events consumed, by result.",
		}, []string{"result"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages handled by the relay, by result.",
		}, []string{"result"}),
		idleSignOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_sign_outs_total",
			Help:      "Auth sessions revoked for inactivity.",
		}),
		websocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected session change feed clients.",
		}),
	}
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.sessionWrites,
		m.changeEvents,
		m.outboxPublished,
		m.idleSignOuts,
		m.websocketClients,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry for /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// GinMiddleware records request count and latency. The route label is the
// matched pattern, not the raw path, to keep cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SessionWritten(changeType string) {
	if m == nil {
		return
	}
	m.sessionWrites.WithLabelValues(changeType).Inc()
}

func (m *Metrics) ChangeEventHandled(result string) {
	if m == nil {
		return
	}
	m.changeEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxMessageHandled(result string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(result).Inc()
}

func (m *Metrics) IdleSignOuts(n int) {
	if m == nil {
		return
	}
	m.idleSignOuts.Add(float64(n))
}

func (m *Metrics) WebsocketConnected() {
	if m == nil {
		return
	}
	m.websocketClients.Inc()
}

func (m *Metrics) WebsocketDisconnected() {
	if m == nil {
		return
	}
	m.websocketClients.Dec()
}
