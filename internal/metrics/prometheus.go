package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter

	// Upload metrics
	UploadsAccepted prometheus.Counter
	UploadsRejected prometheus.Counter
	UploadSize      prometheus.Histogram

	// Pipeline metrics
	PipelineRuns   *prometheus.CounterVec
	DecodeDuration prometheus.Histogram
	EncodeDuration prometheus.Histogram
	EncodedSize    prometheus.Histogram
	SourceDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcribir_active_sessions",
			Help: "Current number of transcription sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_sessions_expired_total",
			Help: "Total number of sessions removed after inactivity",
		}),

		UploadsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_uploads_accepted_total",
			Help: "Total number of media files accepted",
		}),
		UploadsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_uploads_rejected_total",
			Help: "Total number of media files rejected before processing",
		}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribir_upload_size_bytes",
			Help:    "Size of accepted media files",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10), // 64KB to ~16GB
		}),

		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribir_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		DecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribir_decode_duration_seconds",
			Help:    "Time spent decoding media into samples",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		EncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribir_encode_duration_seconds",
			Help:    "Time spent encoding samples into WAV",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		EncodedSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribir_encoded_size_bytes",
			Help:    "Size of WAV containers sent for transcription",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		SourceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribir_source_duration_seconds",
			Help:    "Playback duration of decoded media",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribir_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribir_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribir_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcribir_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribir_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordSessionExpired increments the expired sessions counter
func (m *Metrics) RecordSessionExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

// RecordUpload records an accepted or rejected upload
func (m *Metrics) RecordUpload(accepted bool, sizeBytes int64) {
	if m == nil {
		return
	}
	if !accepted {
		m.UploadsRejected.Inc()
		return
	}
	m.UploadsAccepted.Inc()
	m.UploadSize.Observe(float64(sizeBytes))
}

// RecordPipelineRun increments the pipeline runs counter for an outcome
func (m *Metrics) RecordPipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

// RecordDecode records decode latency and the decoded media length
func (m *Metrics) RecordDecode(durationSeconds, sourceSeconds float64) {
	if m == nil {
		return
	}
	m.DecodeDuration.Observe(durationSeconds)
	m.SourceDuration.Observe(sourceSeconds)
}

// RecordEncode records encode latency and container size
func (m *Metrics) RecordEncode(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.EncodeDuration.Observe(durationSeconds)
	m.EncodedSize.Observe(float64(sizeBytes))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
