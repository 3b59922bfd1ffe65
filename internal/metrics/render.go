package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(renderStepSeconds, imageAttemptsTotal) }

var renderStepSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "storyreel_render_step_seconds",
		Help:    "Duration of each video assembly step in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	},
	[]string{"step", "success"},
)

var imageAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storyreel_image_attempts_total",
		Help: "Image generation attempts, labeled by outcome.",
	},
	[]string{"outcome"}, // 'ok', 'retry', 'exhausted'
)

func ObserveRenderStep(step string, started time.Time, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	renderStepSeconds.WithLabelValues(norm(step), s).Observe(time.Since(started).Seconds())
}

func IncImageAttempt(outcome string) {
	imageAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}
