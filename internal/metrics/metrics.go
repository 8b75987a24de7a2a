// Package metrics collects Prometheus metrics for the identity and posts services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the view of the collector used by services, middleware and the worker.
type Recorder interface {
	RecordAuthEvent(event, outcome string)
	RecordHTTPRequest(method, route string, status int, latency time.Duration)
	RecordEventProcessed(eventType, outcome string)
	RecordSessionsPruned(count int)
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector registers its metrics under a per-service namespace.
type Collector struct {
	authEvents     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	eventsHandled  *prometheus.CounterVec
	sessionsPruned prometheus.Counter
}

func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Login, refresh and logout attempts by outcome.",
		}, []string{"event", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Stream events handled by type and outcome.",
		}, []string{"type", "outcome"}),
		sessionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_pruned_total",
			Help:      "Stale refresh index entries removed.",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.httpRequests,
		c.httpLatency,
		c.eventsHandled,
		c.sessionsPruned,
	)

	return c
}

func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordHTTPRequest expects the route template, not the raw path, to keep
// label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int, latency time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

func (c *Collector) RecordEventProcessed(eventType, outcome string) {
	c.eventsHandled.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) RecordSessionsPruned(count int) {
	c.sessionsPruned.Add(float64(count))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordAuthEvent(string, string)                       {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordEventProcessed(string, string)                  {}
func (Nop) RecordSessionsPruned(int)                             {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
