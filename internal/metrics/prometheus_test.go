package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPipelineRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPipelineRun("completed")
	m.RecordPipelineRun("completed")
	m.RecordPipelineRun("decode_error")

	if got := testutil.ToFloat64(m.PipelineRuns.WithLabelValues("completed")); got != 2 {
		t.Errorf("Expected 2 completed runs, got %f", got)
	}
	if got := testutil.ToFloat64(m.PipelineRuns.WithLabelValues("decode_error")); got != 1 {
		t.Errorf("Expected 1 decode error, got %f", got)
	}
}

func TestRecordUpload(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordUpload(true, 4096)
	m.RecordUpload(false, 0)
	m.RecordUpload(false, 0)

	if got := testutil.ToFloat64(m.UploadsAccepted); got != 1 {
		t.Errorf("Expected 1 accepted upload, got %f", got)
	}
	if got := testutil.ToFloat64(m.UploadsRejected); got != 2 {
		t.Errorf("Expected 2 rejected uploads, got %f", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide when given their own registries
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.SetActiveSessions(3)
	second.SetActiveSessions(1)

	if got := testutil.ToFloat64(first.ActiveSessions); got != 3 {
		t.Errorf("Expected 3 active sessions, got %f", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.SetActiveSessions(1)
	m.RecordSessionCreated()
	m.RecordSessionExpired()
	m.RecordUpload(true, 1)
	m.RecordPipelineRun("completed")
	m.RecordDecode(1, 1)
	m.RecordEncode(1, 1)
	m.RecordTranscriptionRequest()
	m.RecordTranscriptionSuccess(1)
	m.RecordTranscriptionFailure(1)
	m.RecordHTTPRequest("GET", "/health", "200", 0.1)
	m.RecordHTTPError("GET", "/health", "server_error")
}
