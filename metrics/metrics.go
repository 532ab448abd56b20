// Package metrics holds the Prometheus collectors shared by the pipeline and
// the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "city311_pipeline_records_loaded_total",
		Help: "Total number of cleaned records kept by the loader.",
	})
	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city311_pipeline_records_dropped_total",
		Help: "Total number of raw rows dropped by the loader, by reason.",
	}, []string{"reason"})
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city311_pipeline_runs_total",
		Help: "Total number of pipeline runs, by outcome.",
	}, []string{"status"})
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "city311_pipeline_duration_seconds",
		Help:    "Duration of a full pipeline run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	ModelAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "city311_model_accuracy",
		Help: "Held-out accuracy of the most recently trained model.",
	})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city311_api_predictions_total",
		Help: "Total number of completion predictions served, by label.",
	}, []string{"label"})
	PredictionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city311_api_prediction_failures_total",
		Help: "Total number of rejected or failed prediction requests, by kind.",
	}, []string{"kind"})
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "city311_api_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Middleware observes request latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
