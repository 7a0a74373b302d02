package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamscapers_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dreamscapers_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamscapers_generations_total",
			Help: "Generation requests by outcome (ok or failure kind).",
		},
		[]string{"outcome"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dreamscapers_quota_rejections_total",
			Help: "Generation requests rejected by the weekly quota.",
		},
	)

	UpstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dreamscapers_upstream_duration_seconds",
			Help:    "Latency of image model calls in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamscapers_events_published_total",
			Help: "Generation events published to NATS.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		QuotaRejectionsTotal,
		UpstreamDuration,
		EventsPublishedTotal,
	)
}
