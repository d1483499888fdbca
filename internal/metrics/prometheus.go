package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satriahrh/speakcoach/internal/pipeline"
)

const namespace = "speakcoach"

// Metrics contains all Prometheus metrics for the coaching service
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
	UploadSize          prometheus.Histogram

	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	StepDuration     *prometheus.HistogramVec
	StepFailures     *prometheus.CounterVec

	// Live conversation metrics
	LiveConnections prometheus.Gauge
	LiveUtterances  prometheus.Counter
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics creates and registers all metrics on reg. Each registry can
// only hold one set, so tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors by error code",
		}, []string{"endpoint", "code"}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of uploaded recordings in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~16MB
		}),

		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of provider pipeline runs by outcome",
		}, []string{"pipeline", "outcome"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of provider pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"pipeline"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Duration of individual provider calls",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"pipeline", "step"}),
		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_step_failures_total",
			Help:      "Total number of failed provider calls",
		}, []string{"pipeline", "step"}),

		LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Current number of live conversation websocket connections",
		}),
		LiveUtterances: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_utterances_total",
			Help:      "Total number of utterances received over live connections",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error by its wire code
func (m *Metrics) RecordHTTPError(endpoint, code string) {
	m.HTTPErrors.WithLabelValues(endpoint, code).Inc()
}

// RecordUpload records the size of an uploaded recording
func (m *Metrics) RecordUpload(sizeBytes int) {
	m.UploadSize.Observe(float64(sizeBytes))
}

// LiveConnectionOpened increments the live connection gauge
func (m *Metrics) LiveConnectionOpened() {
	m.LiveConnections.Inc()
}

// LiveConnectionClosed decrements the live connection gauge
func (m *Metrics) LiveConnectionClosed() {
	m.LiveConnections.Dec()
}

// RecordLiveUtterance counts one utterance received over a live connection
func (m *Metrics) RecordLiveUtterance() {
	m.LiveUtterances.Inc()
}

// Observe implements pipeline.Observer
func (m *Metrics) Observe(event pipeline.Event) {
	switch event.Type {
	case pipeline.EventStepCompleted:
		m.StepDuration.WithLabelValues(event.Definition, string(event.StepID)).Observe(event.Duration.Seconds())
	case pipeline.EventStepFailed:
		m.StepDuration.WithLabelValues(event.Definition, string(event.StepID)).Observe(event.Duration.Seconds())
		m.StepFailures.WithLabelValues(event.Definition, string(event.StepID)).Inc()
	case pipeline.EventRunCompleted:
		m.PipelineRuns.WithLabelValues(event.Definition, "success").Inc()
		m.PipelineDuration.WithLabelValues(event.Definition).Observe(event.Duration.Seconds())
	case pipeline.EventRunFailed:
		m.PipelineRuns.WithLabelValues(event.Definition, "failure").Inc()
		m.PipelineDuration.WithLabelValues(event.Definition).Observe(event.Duration.Seconds())
	}
}
