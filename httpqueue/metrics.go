/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons reported to the metrics collector.
const (
	RejectionReasonQueueFull = "queue_full"
	RejectionReasonShutdown  = "shutdown"
)

// MetricsCollector is an interface for collecting metrics of the queue responder.
type MetricsCollector interface {
	// RequestDuration observes the duration of the request and the status code.
	// Status is "0" when the request failed before receiving a response.
	RequestDuration(host, status string, startTime time.Time)

	// RequestRejected counts a submission that was rejected without dispatch.
	RequestRejected(reason string)

	// QueueLen observes the current queue length.
	QueueLen(length int)
}

// PrometheusMetricsCollector is a Prometheus metrics collector.
type PrometheusMetricsCollector struct {
	// Durations is a histogram of the dispatched requests durations.
	Durations *prometheus.HistogramVec

	// Rejections is a counter of rejected submissions by reason.
	Rejections *prometheus.CounterVec

	// QueueLength is a gauge of the current number of queued requests.
	QueueLength prometheus.Gauge
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_queue_request_duration_seconds",
			Help:      "A histogram of the queued http requests durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600},
		}, []string{"remote_address", "status"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_queue_rejected_submissions_total",
			Help:      "A counter of submissions rejected without dispatch.",
		}, []string{"reason"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_queue_length",
			Help:      "The current number of requests waiting in the queue.",
		}),
	}
}

// MustRegister registers the Prometheus metrics.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Durations, p.Rejections, p.QueueLength)
}

// Unregister the Prometheus metrics.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Durations)
	prometheus.Unregister(p.Rejections)
	prometheus.Unregister(p.QueueLength)
}

// RequestDuration observes the duration of the request and the status code.
func (p *PrometheusMetricsCollector) RequestDuration(host, status string, startTime time.Time) {
	p.Durations.WithLabelValues(host, status).Observe(time.Since(startTime).Seconds())
}

// RequestRejected counts a submission that was rejected without dispatch.
func (p *PrometheusMetricsCollector) RequestRejected(reason string) {
	p.Rejections.WithLabelValues(reason).Inc()
}

// QueueLen observes the current queue length.
func (p *PrometheusMetricsCollector) QueueLen(length int) {
	p.QueueLength.Set(float64(length))
}

type nullMetricsCollector struct{}

func (nullMetricsCollector) RequestDuration(host, status string, startTime time.Time) {}
func (nullMetricsCollector) RequestRejected(reason string)                            {}
func (nullMetricsCollector) QueueLen(length int)                                      {}
