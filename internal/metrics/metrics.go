// Package metrics exports controller state to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/junction.report/internal/junction"
)

// Metrics holds the collectors updated from every tick. It implements
// junction.Sink.
type Metrics struct {
	registry *prometheus.Registry

	vehicleCount *prometheus.GaugeVec
	pending      *prometheus.GaugeVec
	expired      *prometheus.CounterVec
	activePhase  *prometheus.GaugeVec
	phaseChanges *prometheus.CounterVec
	ticks        prometheus.Counter
	passedNow    prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		vehicleCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "junction_vehicle_count",
			Help: "Cumulative vehicles counted crossing the detection line",
		}, []string{"direction"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "junction_pending_detections",
			Help: "Detections waiting to cross the detection line",
		}, []string{"direction"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "junction_expired_detections_total",
			Help: "Detections evicted by the retention policy",
		}, []string{"direction"}),
		activePhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "junction_active_phase",
			Help: "1 for the phase that currently has green, 0 otherwise",
		}, []string{"phase"}),
		phaseChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "junction_phase_changes_total",
			Help: "Phase transitions by reason",
		}, []string{"reason"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "junction_ticks_total",
			Help: "Completed controller ticks",
		}),
		passedNow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "junction_green_crossings_total",
			Help: "Crossings on approaches that had green when they crossed",
		}),
	}

	m.registry.MustRegister(
		m.vehicleCount,
		m.pending,
		m.expired,
		m.activePhase,
		m.phaseChanges,
		m.ticks,
		m.passedNow,
	)

	// Pre-populate label sets so dashboards see zeros before the first crossing.
	for _, d := range junction.Directions {
		m.vehicleCount.WithLabelValues(d.String())
		m.pending.WithLabelValues(d.String())
		m.expired.WithLabelValues(d.String())
	}
	for _, r := range []junction.Reason{junction.ReasonDuration, junction.ReasonInactivity, junction.ReasonPriority} {
		m.phaseChanges.WithLabelValues(string(r))
	}
	m.setPhase(junction.PhaseNS)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements junction.Sink.
func (m *Metrics) Emit(_ context.Context, s junction.Snapshot) error {
	for _, d := range junction.Directions {
		m.vehicleCount.WithLabelValues(d.String()).Set(float64(s.Counts[d]))
		m.pending.WithLabelValues(d.String()).Set(float64(s.Pending[d]))
		if s.Expired[d] > 0 {
			m.expired.WithLabelValues(d.String()).Add(float64(s.Expired[d]))
		}
	}
	for _, ch := range s.Decision.Changes {
		m.phaseChanges.WithLabelValues(string(ch.Reason)).Inc()
	}
	m.setPhase(s.Phase)
	m.ticks.Inc()
	m.passedNow.Add(float64(s.PassedNow))
	return nil
}

func (m *Metrics) setPhase(p junction.Phase) {
	for _, q := range []junction.Phase{junction.PhaseNS, junction.PhaseEW} {
		v := 0.0
		if q == p {
			v = 1
		}
		m.activePhase.WithLabelValues(string(q)).Set(v)
	}
}
