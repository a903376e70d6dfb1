package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the editor
type Metrics struct {
	// Candidates evaluated by selection pipelines, by verdict and reason
	Candidates *prometheus.CounterVec

	// Photo set notifications delivered
	Notifications prometheus.Counter

	// Current number of photos in the set
	Photos prometheus.Gauge

	// Preview renders
	Renders prometheus.Counter

	// Selection sessions opened
	Sessions prometheus.Counter

	// Save attempts by status
	Saves *prometheus.CounterVec

	// Save latency histogram
	SaveLatency prometheus.Histogram
}

// NewMetrics creates metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Candidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collage_candidates_total",
				Help: "Total number of picked photos evaluated by the selection pipeline",
			},
			[]string{"verdict", "reason"},
		),
		Notifications: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "collage_photoset_notifications_total",
				Help: "Total number of photo set change notifications",
			},
		),
		Photos: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "collage_photos",
				Help: "Current number of photos in the collage",
			},
		),
		Renders: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "collage_renders_total",
				Help: "Total number of preview renders",
			},
		),
		Sessions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "collage_sessions_total",
				Help: "Total number of photo selection sessions",
			},
		),
		Saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collage_saves_total",
				Help: "Total number of collage save attempts",
			},
			[]string{"status"}, // "success" or "error"
		),
		SaveLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "collage_save_duration_seconds",
				Help: "Collage save latency in seconds",
				Buckets: []float64{
					0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
				},
			},
		),
	}
}

// RecordSave records a completed save with its latency and status
func (m *Metrics) RecordSave(durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	m.Saves.WithLabelValues(status).Inc()
	m.SaveLatency.Observe(durationSeconds)
}
