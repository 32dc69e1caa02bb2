// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "landuse_api_classify_duration_seconds",
			Help:    "Total time taken for classification requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"label"},
	)

	PreprocessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "landuse_api_preprocess_duration_seconds",
			Help:    "Time spent decoding and tensorizing images in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "landuse_api_inference_duration_seconds",
			Help:    "Time spent inside the model session in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landuse_api_request_count_total",
			Help: "Total number of classification requests processed",
		},
		[]string{"label", "status"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "landuse_api_result_cache_hits_total",
			Help: "Classification results served from the result cache",
		},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landuse_api_error_count",
			Help: "Error count",
		},
		[]string{"from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "landuse_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
