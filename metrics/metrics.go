// Package metrics exposes Prometheus metrics for the HTTP surface and the
// matching engine:
//   - cnas_http_requests_total, cnas_http_request_duration_seconds and
//     cnas_http_requests_in_flight for request traffic
//   - cnas_detections_total by kind (matched, provisional) and
//     cnas_scans_total by outcome
//   - cnas_reimbursement_calculations_total and cnas_chifa_validations_total
//   - cnas_catalog_entries and cnas_catalog_refresh_total for the snapshot
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "cnas"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limiter_buckets",
			Help:      "Number of client rate limiter buckets",
		},
	)

	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Medicines detected on prescriptions",
		},
		[]string{"kind"},
	)

	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Prescription scans by outcome",
		},
		[]string{"outcome"},
	)

	ReimbursementCalculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reimbursement_calculations_total",
			Help:      "Reimbursement calculations by category and result",
		},
		[]string{"category", "result"},
	)

	ChifaValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chifa_validations_total",
			Help:      "CHIFA number validations by outcome",
		},
		[]string{"outcome"},
	)

	CatalogEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Entries in the current catalog snapshot",
		},
	)

	CatalogRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_refresh_total",
			Help:      "Catalog refresh attempts by result",
		},
		[]string{"source", "result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(DetectionsTotal)
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ReimbursementCalculationsTotal)
	prometheus.MustRegister(ChifaValidationsTotal)
	prometheus.MustRegister(CatalogEntries)
	prometheus.MustRegister(CatalogRefreshTotal)
}
