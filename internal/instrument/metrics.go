package instrument

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the runtime's Prometheus collectors on a private registry.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Actions       *prometheus.CounterVec
	ListDuration  *prometheus.HistogramVec
	Lookups       *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	EventsDropped prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Button dispatches by page, effect and result",
		}, []string{"page", "effect", "success"}),
		ListDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "list_duration_seconds",
			Help:      "Time to fetch, resolve and render one page of rows",
			Buckets:   prometheus.DefBuckets,
		}, []string{"page", "status"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Model-select label lookups by page and result",
		}, []string{"page", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "status_code"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Instrumentation events lost to failed flushes",
		}),
	}
	reg.MustRegister(m.Actions, m.ListDuration, m.Lookups, m.HTTPRequests, m.EventsDropped)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordAction(page, effect string, success bool) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(page, effect, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) ObserveList(page, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ListDuration.WithLabelValues(page, status).Observe(d.Seconds())
}

func (m *Metrics) RecordLookup(page, status string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(page, status).Inc()
}

func (m *Metrics) RecordRequest(method string, statusCode int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsDropped.Add(float64(n))
}
