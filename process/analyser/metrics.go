package analyser

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for analysis runs.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec   // labels: mode, outcome={complete,no_buildings,failed}
	BuildingsProcessed *prometheus.CounterVec   // labels: mode, calibration
	RunDuration        *prometheus.HistogramVec // labels: mode
	BuildingDuration   prometheus.Histogram
	RunsInFlight       prometheus.Gauge
}

func newMetrics() *Metrics {
	ns := "shepherd"
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Analysis runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		BuildingsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "buildings_processed_total",
			Help:      "Buildings processed by mode and calibration status.",
		}, []string{"mode", "calibration"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete analysis run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		BuildingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "building_duration_seconds",
			Help:      "Time to digitize one building's chart.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "runs_in_flight",
			Help:      "Analysis runs currently executing.",
		}),
	}
}

// NewMetrics creates and registers the analyser metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.BuildingsProcessed,
		m.RunDuration,
		m.BuildingDuration,
		m.RunsInFlight,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many analysers as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
