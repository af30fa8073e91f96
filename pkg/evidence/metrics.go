package evidence

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hackhub",
		Subsystem: "evidence",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of evidence fetches by source",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"source"})

	fetchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hackhub",
		Subsystem: "evidence",
		Name:      "fetch_results_total",
		Help:      "Evidence fetch outcomes by source and accessibility",
	}, []string{"source", "accessible"})
)

func observeFetch(source string, start time.Time, accessible bool) {
	fetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	fetchResults.WithLabelValues(source, strconv.FormatBool(accessible)).Inc()
}
