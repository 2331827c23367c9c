package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sweepItems      *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	diversions      *prometheus.CounterVec
	reversions      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"route", "method", "code"}),
		sweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_sweep_runs_total",
			Help: "Sweep invocations by sweep and outcome.",
		}, []string{"sweep", "outcome"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_sweep_duration_seconds",
			Help:    "Sweep duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
		sweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_sweep_items_total",
			Help: "Items handled by sweeps, by outcome.",
		}, []string{"sweep", "outcome"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_escalations_fired_total",
			Help: "Escalation levels fired.",
		}, []string{"level"}),
		diversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_diversions_total",
			Help: "Work items diverted to a backup.",
		}, []string{"work_item_kind"}),
		reversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_reversions_total",
			Help: "Diversions closed, by reversion type.",
		}, []string{"reversion_type"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_notifications_total",
			Help: "Outbox deliveries by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordSweep records one sweep run.
func (m *Metrics) RecordSweep(sweep string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sweepRuns.WithLabelValues(sweep, outcome).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordSweepItem records the outcome of one item within a sweep.
func (m *Metrics) RecordSweepItem(sweep, outcome string) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(sweep, outcome).Inc()
}

// RecordEscalation counts a fired level.
func (m *Metrics) RecordEscalation(level int) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(strconv.Itoa(level)).Inc()
}

// RecordDiversion counts a diverted work item.
func (m *Metrics) RecordDiversion(kind string) {
	if m == nil {
		return
	}
	m.diversions.WithLabelValues(kind).Inc()
}

// RecordReversion counts a closed diversion.
func (m *Metrics) RecordReversion(reversion string) {
	if m == nil {
		return
	}
	m.reversions.WithLabelValues(reversion).Inc()
}

// RecordNotification counts an outbox delivery attempt.
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}
