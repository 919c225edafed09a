package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devforce_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devforce_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "devforce_http_requests_in_flight",
			Help: "Number of HTTP requests being served.",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devforce_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		},
		[]string{"scope"},
	)

	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devforce_retrievals_total",
			Help: "Total number of retrievals by provenance.",
		},
		[]string{"provenance"},
	)

	RetrievalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devforce_retrieval_errors_total",
			Help: "Total number of failed retrieval tiers.",
		},
		[]string{"tier"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devforce_generations_total",
			Help: "Total number of model invocations by mode and status.",
		},
		[]string{"mode", "status"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devforce_generation_duration_seconds",
			Help:    "Model invocation duration in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"mode"},
	)

	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devforce_documents_ingested_total",
			Help: "Total number of chunks written by the ingestion pipeline.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		RateLimitedTotal,
		RetrievalsTotal,
		RetrievalErrorsTotal,
		GenerationsTotal,
		GenerationDuration,
		DocumentsIngestedTotal,
	)
}
