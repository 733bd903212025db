// Package observability exposes Prometheus metrics for the server, a
// CloudWatch recorder for Lambda deployments and an X-Ray tracer.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each collector
// owns its registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	Intents        *prometheus.CounterVec
	IntentDuration *prometheus.HistogramVec
	Queries        *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	Sessions       prometheus.Gauge
	DroppedEvents  prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Intents handled, by outcome",
		}, []string{"intent", "status"}),
		IntentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_duration_seconds",
			Help:      "Time to apply and broadcast an intent",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Read queries handled",
		}, []string{"query", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Read query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Connected websocket sessions",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events not delivered because a session was too slow or gone",
		}),
	}

	c.registry.MustRegister(
		c.Intents, c.IntentDuration,
		c.Queries, c.QueryDuration,
		c.HTTPRequests, c.HTTPDuration,
		c.Sessions, c.DroppedEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordIntent(intent, status string, d time.Duration) {
	c.Intents.WithLabelValues(intent, status).Inc()
	c.IntentDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (c *Collector) RecordQuery(query string, failed bool, d time.Duration) {
	status := "ok"
	if failed {
		status = "failed"
	}
	c.Queries.WithLabelValues(query, status).Inc()
	c.QueryDuration.WithLabelValues(query).Observe(d.Seconds())
}

func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) SessionOpened() { c.Sessions.Inc() }
func (c *Collector) SessionClosed() { c.Sessions.Dec() }
func (c *Collector) EventDropped()  { c.DroppedEvents.Inc() }
