// Package metrics exposes Prometheus counters for calls, patient replies and findings.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the harness. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	CallsPlaced    *prometheus.CounterVec
	CallsFinalized *prometheus.CounterVec
	TurnsTotal     *prometheus.CounterVec

	// Patient reply metrics
	RepliesTotal  *prometheus.CounterVec
	ReplyDuration *prometheus.HistogramVec

	// Run and analysis metrics
	RunsTotal     *prometheus.CounterVec
	FindingsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every metric registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "patient_qa"
	}
	registry := prometheus.NewRegistry()

	callsPlaced := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_placed_total",
			Help:      "Outbound call placement attempts by outcome",
		},
		[]string{"status"},
	)

	callsFinalized := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_finalized_total",
			Help:      "Calls finalized by reason",
		},
		[]string{"reason"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Transcript turns recorded by role",
		},
		[]string{"role"},
	)

	repliesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patient_replies_total",
			Help:      "Patient reply decisions by deciding tier",
		},
		[]string{"tier"},
	)

	replyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "patient_reply_duration_seconds",
			Help:      "Time to decide a patient reply",
			Buckets:   []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"tier"},
	)

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Batch runs by final status",
		},
		[]string{"status"},
	)

	findingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Defects extracted from transcripts",
		},
		[]string{"severity", "category"},
	)

	registry.MustRegister(
		callsPlaced,
		callsFinalized,
		turnsTotal,
		repliesTotal,
		replyDuration,
		runsTotal,
		findingsTotal,
	)

	return &Metrics{
		registry:       registry,
		CallsPlaced:    callsPlaced,
		CallsFinalized: callsFinalized,
		TurnsTotal:     turnsTotal,
		RepliesTotal:   repliesTotal,
		ReplyDuration:  replyDuration,
		RunsTotal:      runsTotal,
		FindingsTotal:  findingsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterActiveCalls exposes a gauge read from fn at scrape time.
func (m *Metrics) RegisterActiveCalls(namespace string, fn func() int) {
	if m == nil || fn == nil {
		return
	}
	if namespace == "" {
		namespace = "patient_qa"
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls with a live, unfinalized session",
		},
		func() float64 { return float64(fn()) },
	))
}

// RecordPlacement records one call placement attempt.
func (m *Metrics) RecordPlacement(ok bool) {
	if m == nil {
		return
	}
	status := "placed"
	if !ok {
		status = "failed"
	}
	m.CallsPlaced.WithLabelValues(status).Inc()
}

// RecordFinalize records a call finalization.
func (m *Metrics) RecordFinalize(reason string) {
	if m == nil {
		return
	}
	m.CallsFinalized.WithLabelValues(reason).Inc()
}

// RecordTurn records one transcript turn.
func (m *Metrics) RecordTurn(role string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(role).Inc()
}

// RecordReply records a patient reply decision.
func (m *Metrics) RecordReply(tier string, d time.Duration) {
	if m == nil {
		return
	}
	m.RepliesTotal.WithLabelValues(tier).Inc()
	m.ReplyDuration.WithLabelValues(tier).Observe(d.Seconds())
}

// RecordRun records a finished batch run.
func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordFinding records one kept finding.
func (m *Metrics) RecordFinding(severity, category string) {
	if m == nil {
		return
	}
	m.FindingsTotal.WithLabelValues(severity, category).Inc()
}
