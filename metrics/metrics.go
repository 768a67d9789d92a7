package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"content_draft_generator/generator"
)

// Metrics holds the collectors for stage calls and feedback rounds.
type Metrics struct {
	registry      *prometheus.Registry
	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	inflight      prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draftgen_stage_calls_total",
				Help: "Model calls issued per stage, by outcome",
			},
			[]string{"pipeline", "stage", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "draftgen_stage_duration_seconds",
				Help:    "Duration of stage model calls",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"pipeline", "stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "draftgen_requests_total",
				Help: "Generate and feedback requests, by outcome",
			},
			[]string{"pipeline", "kind", "status"},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "draftgen_inflight_requests",
			Help: "Model-bound requests currently running",
		}),
	}
	m.registry.MustRegister(m.stageCalls, m.stageDuration, m.runs, m.inflight)
	return m
}

// Hooks records every stage call made by a runner.
func (m *Metrics) Hooks() generator.Hooks {
	return generator.Hooks{
		OnStageEnd: func(_ context.Context, e generator.StageEvent) {
			status := "ok"
			if e.Err != nil {
				status = "error"
			}
			m.stageCalls.WithLabelValues(e.Pipeline, e.Stage, status).Inc()
			m.stageDuration.WithLabelValues(e.Pipeline, e.Stage).Observe(e.Duration.Seconds())
		},
	}
}

// ObserveRequest counts one generate ("generate") or feedback ("feedback") request.
func (m *Metrics) ObserveRequest(pipeline, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(pipeline, kind, status).Inc()
}

// Track marks a model-bound request as running until the returned func is called.
func (m *Metrics) Track() func() {
	m.inflight.Inc()
	return m.inflight.Dec
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
