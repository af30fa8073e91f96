package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoringDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hackhub",
		Subsystem: "ai",
		Name:      "scoring_duration_seconds",
		Help:      "Duration of LLM scoring requests",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	}, []string{"provider", "model"})

	scoringFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hackhub",
		Subsystem: "ai",
		Name:      "scoring_failures_total",
		Help:      "Number of LLM scoring failures by kind",
	}, []string{"provider", "model", "kind"})
)

func recordFailure(model string, err *ScoringError) *ScoringError {
	scoringFailures.WithLabelValues(err.Provider, model, string(err.Kind)).Inc()
	return err
}
