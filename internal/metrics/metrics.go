// Package metrics holds Prometheus collectors for the resolution pipeline and the backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch failure kinds.
const (
	FailureSession  = "session"
	FailureProfile  = "profile"
	FailureSettings = "settings"
	FailureRefresh  = "refresh"
)

// Resolution holds collectors for resolution passes. A nil *Resolution is a no-op.
type Resolution struct {
	Passes         *prometheus.CounterVec
	Decisions      *prometheus.CounterVec
	StaleDropped   prometheus.Counter
	FetchFailures  *prometheus.CounterVec
	PassDurationMs prometheus.Histogram
}

// NewResolution registers resolution collectors on reg.
func NewResolution(reg prometheus.Registerer) *Resolution {
	f := promauto.With(reg)
	return &Resolution{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gymflow_resolution_passes_total",
			Help: "Resolution passes started, by trigger",
		}, []string{"reason"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gymflow_resolution_decisions_total",
			Help: "Decisions applied to navigation state, by kind and rule",
		}, []string{"kind", "rule"}),
		StaleDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gymflow_resolution_stale_dropped_total",
			Help: "Decisions discarded because their session was superseded",
		}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gymflow_fetch_failures_total",
			Help: "Backend reads that failed and were absorbed into a default",
		}, []string{"kind"}),
		PassDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gymflow_resolution_pass_duration_ms",
			Help:    "Duration of a resolution pass in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}
}

// PassStarted counts a pass for reason.
func (m *Resolution) PassStarted(reason string) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(reason).Inc()
}

// DecisionApplied counts an applied decision.
func (m *Resolution) DecisionApplied(kind, rule string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind, rule).Inc()
}

// StaleDecision counts a discarded decision.
func (m *Resolution) StaleDecision() {
	if m == nil {
		return
	}
	m.StaleDropped.Inc()
}

// FetchFailed counts an absorbed read failure of the given kind.
func (m *Resolution) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Inc()
}

// ObservePass records how long a pass took.
func (m *Resolution) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.PassDurationMs.Observe(float64(d.Milliseconds()))
}

// Backend holds collectors for the gRPC backend.
type Backend struct {
	Requests   *prometheus.CounterVec
	DurationMs *prometheus.HistogramVec
	Logins     *prometheus.CounterVec
}

// NewBackend registers backend collectors on reg.
func NewBackend(reg prometheus.Registerer) *Backend {
	f := promauto.With(reg)
	return &Backend{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gymflow_backend_requests_total",
			Help: "Backend RPCs handled, by method and status code",
		}, []string{"method", "code"}),
		DurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gymflow_backend_request_duration_ms",
			Help:    "Backend RPC latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"method"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gymflow_backend_logins_total",
			Help: "Login attempts, by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveRPC records one handled RPC.
func (m *Backend) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, code).Inc()
	m.DurationMs.WithLabelValues(method).Observe(float64(d.Milliseconds()))
}

// Login counts a login attempt outcome.
func (m *Backend) Login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}
