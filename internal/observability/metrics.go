package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	apiRequestsTotal        *prometheus.CounterVec
	apiLatencySeconds       *prometheus.HistogramVec
	apiErrorsTotal          *prometheus.CounterVec
	analysisRunsTotal       *prometheus.CounterVec
	analysisDurationSeconds *prometheus.HistogramVec
	analysisDispatchTotal   *prometheus.CounterVec
	statusCacheTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors shared by the API and the analysis pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackhub_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hackhub_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5, 15, 60},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackhub_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		analysisRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackhub_analysis_runs_total",
			Help: "Analysis attempts grouped by outcome.",
		}, []string{"outcome"})

		analysisDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hackhub_analysis_duration_seconds",
			Help:    "End-to-end duration of claimed analysis runs.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
		}, []string{"outcome"})

		analysisDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackhub_analysis_dispatch_total",
			Help: "Fire-and-forget analysis requests grouped by transport and result.",
		}, []string{"transport", "result"})

		statusCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hackhub_analysis_status_cache_total",
			Help: "Analysis status cache lookups grouped by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			analysisRunsTotal,
			analysisDurationSeconds,
			analysisDispatchTotal,
			statusCacheTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AnalysisRuns counts analysis attempts by outcome (analyzed, cached, in_progress, failed, error).
func AnalysisRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return analysisRunsTotal
}

// AnalysisDuration observes how long claimed runs take.
func AnalysisDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return analysisDurationSeconds
}

// AnalysisDispatches counts fire-and-forget dispatches.
func AnalysisDispatches() *prometheus.CounterVec {
	RegisterMetrics()
	return analysisDispatchTotal
}

// StatusCacheLookups counts status cache hits and misses.
func StatusCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return statusCacheTotal
}
