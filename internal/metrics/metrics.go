// Package metrics defines prometheus metrics to expose
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawcredit_gateway_request_count_total",
			Help: "Total number of requests processed",
		},
		[]string{"route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clawcredit_gateway_request_duration_seconds",
			Help:    "Total time taken for requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300},
		},
		[]string{"route"},
	)

	PaymentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clawcredit_gateway_payment_duration_seconds",
			Help:    "Time spent in the payment authority, upstream inference included",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300},
		},
	)

	PaymentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawcredit_gateway_payment_failures_total",
			Help: "Failed payments by mapped HTTP status",
		},
		[]string{"status"},
	)

	EstimatedMicros = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcredit_gateway_estimated_micros_total",
			Help: "Sum of pre-authorized amounts in micro-USD",
		},
	)

	StreamEmulations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawcredit_gateway_stream_emulations_total",
			Help: "Responses re-emitted as server-sent events",
		},
		[]string{"mode"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
