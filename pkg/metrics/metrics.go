// Package metrics holds the Prometheus instruments of the gateway.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission metrics
	AdmissionsTotal *prometheus.CounterVec

	// Entitlement metrics
	ResolveDuration       prometheus.Histogram
	ResolveDegradedTotal  *prometheus.CounterVec
	LazyTransitionsTotal  *prometheus.CounterVec
	ProvisionedUsersTotal prometheus.Counter

	// Usage metrics
	UsageRecordedTotal  *prometheus.CounterVec
	UsageFailuresTotal  *prometheus.CounterVec
	UsageFallbacksTotal *prometheus.CounterVec
	UsageRetriesTotal   *prometheus.CounterVec
	UsageTasksInFlight  prometheus.Gauge
	HistoryDroppedTotal prometheus.Counter
	HistoryWrittenTotal prometheus.Counter
}

// New creates and registers all gateway metrics on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotagate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AdmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_admissions_total",
				Help: "Admission decisions by guard and outcome",
			},
			[]string{"guard", "outcome"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quotagate_entitlement_resolve_duration_seconds",
				Help:    "Time spent resolving a user's entitlements",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		ResolveDegradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_entitlement_degraded_total",
				Help: "Resolutions answered with the default plan because the store failed",
			},
			[]string{"reason"},
		),
		LazyTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_subscription_lazy_transitions_total",
				Help: "Subscriptions moved to a lapsed status at read time",
			},
			[]string{"status", "persisted"},
		),
		ProvisionedUsersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotagate_subscription_provisioned_total",
				Help: "Default subscriptions created on first access",
			},
		),
		UsageRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_usage_recorded_total",
				Help: "Usage events persisted, by usage type and path",
			},
			[]string{"usage_type", "path"},
		),
		UsageFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_usage_failures_total",
				Help: "Usage events that could not be persisted",
			},
			[]string{"usage_type"},
		),
		UsageFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_usage_fallbacks_total",
				Help: "Usage events persisted through the non-atomic fallback",
			},
			[]string{"usage_type"},
		),
		UsageRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotagate_usage_retries_total",
				Help: "Retries of the atomic usage increment",
			},
			[]string{"usage_type"},
		),
		UsageTasksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotagate_usage_tasks_in_flight",
				Help: "Background usage recordings not yet finished",
			},
		),
		HistoryDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotagate_history_dropped_total",
				Help: "File history entries dropped after write failures",
			},
		),
		HistoryWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotagate_history_written_total",
				Help: "File history entries persisted",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AdmissionsTotal,
		m.ResolveDuration,
		m.ResolveDegradedTotal,
		m.LazyTransitionsTotal,
		m.ProvisionedUsersTotal,
		m.UsageRecordedTotal,
		m.UsageFailuresTotal,
		m.UsageFallbacksTotal,
		m.UsageRetriesTotal,
		m.UsageTasksInFlight,
		m.HistoryDroppedTotal,
		m.HistoryWrittenTotal,
	)

	return m
}

func (m *Metrics) Admission(guard, outcome string) {
	if m == nil {
		return
	}
	m.AdmissionsTotal.WithLabelValues(guard, outcome).Inc()
}

func (m *Metrics) Resolved(d time.Duration) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(d.Seconds())
}

func (m *Metrics) Degraded(reason string) {
	if m == nil {
		return
	}
	m.ResolveDegradedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) LazyTransition(status string, persisted bool) {
	if m == nil {
		return
	}
	m.LazyTransitionsTotal.WithLabelValues(status, strconv.FormatBool(persisted)).Inc()
}

func (m *Metrics) Provisioned() {
	if m == nil {
		return
	}
	m.ProvisionedUsersTotal.Inc()
}

func (m *Metrics) UsageRecorded(usageType, path string) {
	if m == nil {
		return
	}
	m.UsageRecordedTotal.WithLabelValues(usageType, path).Inc()
	if path == "fallback" {
		m.UsageFallbacksTotal.WithLabelValues(usageType).Inc()
	}
}

func (m *Metrics) UsageFailed(usageType string) {
	if m == nil {
		return
	}
	m.UsageFailuresTotal.WithLabelValues(usageType).Inc()
}

func (m *Metrics) UsageRetried(usageType string) {
	if m == nil {
		return
	}
	m.UsageRetriesTotal.WithLabelValues(usageType).Inc()
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.UsageTasksInFlight.Inc()
}

func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.UsageTasksInFlight.Dec()
}

func (m *Metrics) HistoryWritten(n int) {
	if m == nil {
		return
	}
	m.HistoryWrittenTotal.Add(float64(n))
}

func (m *Metrics) HistoryDropped(n int) {
	if m == nil {
		return
	}
	m.HistoryDroppedTotal.Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP requests. route names the label value so that
// path parameters do not explode cardinality; nil uses the raw path.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			name := r.URL.Path
			if route != nil {
				name = route(r)
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
