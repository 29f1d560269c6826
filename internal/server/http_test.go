package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elian-pro/Transcribir/internal/config"
	"github.com/elian-pro/Transcribir/internal/credential"
	"github.com/elian-pro/Transcribir/internal/logging"
	"github.com/elian-pro/Transcribir/internal/metrics"
	"github.com/elian-pro/Transcribir/internal/pipeline"
	"github.com/elian-pro/Transcribir/internal/session"
	"github.com/elian-pro/Transcribir/internal/transcription"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type instantRunner struct {
	text string
	keys chan string
}

func (r *instantRunner) Run(ctx context.Context, in pipeline.Input, apiKey string, onStage func(pipeline.Stage)) (*pipeline.Result, error) {
	onStage(pipeline.StageExtracting)
	onStage(pipeline.StageTranscribing)
	select {
	case r.keys <- apiKey:
	default:
	}
	return &pipeline.Result{Text: r.text, SourceDurationSeconds: 2, Provider: "stub"}, nil
}

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }
func (stubProvider) Transcribe(ctx context.Context, r *transcription.Request) (*transcription.Response, error) {
	return &transcription.Response{Text: "unused"}, nil
}
func (stubProvider) Stats() transcription.ClientStats {
	return transcription.ClientStats{Provider: "stub", TotalRequests: 3}
}
func (stubProvider) Close() error { return nil }

type testEnv struct {
	server *httptest.Server
	runner *instantRunner
	cfg    *config.Config
}

func newTestEnv(t *testing.T, injected string) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Upload.Dir = t.TempDir()
	cfg.Upload.MaxBytes = 4096
	cfg.Transcription.APIKey = "AIzaSyExample1234"

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	runner := &instantRunner{text: "[Speaker 1]: hola", keys: make(chan string, 10)}

	mgr := session.NewManager(logging.Discard(), session.ManagerConfig{
		Timeout:         time.Hour,
		CleanupInterval: time.Hour,
		Injected:        credential.Static(credential.OriginInjected, injected),
	}, runner, m)
	t.Cleanup(mgr.Stop)

	h := NewHTTPServer(cfg, logging.Discard(), mgr, stubProvider{}, m, reg)
	server := httptest.NewServer(h.Handler())
	t.Cleanup(server.Close)

	return &testEnv{server: server, runner: runner, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) createSession(t *testing.T) session.Snapshot {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/api/v1/sessions", nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("Invalid snapshot JSON: %v", err)
	}
	return snap
}

func (e *testEnv) upload(t *testing.T, id, filename, contentType string, content []byte) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("Failed to create part: %v", err)
	}
	part.Write(content)
	writer.Close()

	return e.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/file", &buf, writer.FormDataContentType())
}

func (e *testEnv) waitForState(t *testing.T, id string, want session.State) session.Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	var snap session.Snapshot
	for time.Now().Before(deadline) {
		_, body := e.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil, "")
		json.Unmarshal(body, &snap)
		if snap.State == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Session did not reach %s, last %s", want, snap.State)
	return snap
}

func TestMonitoringEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		path     string
		contains string
	}{
		{"/", "/api/v1/sessions"},
		{"/health", `"status":"healthy"`},
		{"/stats", `"active_count":0`},
		{"/stats/transcription", `"total_requests":3`},
		{"/config", `"api_key":"****1234"`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, tt.path, nil, "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("Expected body to contain %q, got %s", tt.contains, body)
			}
		})
	}

	_, body := env.do(t, http.MethodGet, "/config", nil, "")
	if strings.Contains(string(body), "AIzaSyExample1234") {
		t.Error("Config endpoint must not expose the API key")
	}

	_, body = env.do(t, http.MethodGet, "/metrics", nil, "")
	if !strings.Contains(string(body), `transcribir_http_requests_total{endpoint="/health",method="GET",status_code="200"} 1`) {
		t.Errorf("Expected request metric for /health, got:\n%s", body)
	}
}

func TestTranscriptionFlow(t *testing.T) {
	env := newTestEnv(t, "")
	snap := env.createSession(t)

	resp, body := env.upload(t, snap.ID, "clip.wav", "audio/wav", []byte("RIFF....WAVE"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Upload failed with %d: %s", resp.StatusCode, body)
	}
	json.Unmarshal(body, &snap)
	if snap.File == nil || snap.File.Name != "clip.wav" || snap.File.MediaType != "audio/wav" {
		t.Fatalf("Unexpected file in snapshot %+v", snap.File)
	}

	// No credential anywhere
	resp, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/transcribe", nil, "")
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(string(body), "missing_credential") {
		t.Fatalf("Expected 401 missing_credential, got %d: %s", resp.StatusCode, body)
	}

	// Saved credential
	resp, _ = env.do(t, http.MethodPut, "/api/v1/sessions/"+snap.ID+"/credential",
		strings.NewReader(`{"api_key":"saved-key"}`), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Saving credential failed with %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/transcribe",
		strings.NewReader(`{"api_key":"entered-key"}`), "application/json")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"credential_origin":"saved"`) {
		t.Errorf("Saved key should win over entered key, got %s", body)
	}
	if key := <-env.runner.keys; key != "saved-key" {
		t.Errorf("Runner received %q", key)
	}

	done := env.waitForState(t, snap.ID, session.StateCompleted)
	if done.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", done.Progress)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID+"/transcript", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Transcript failed with %d", resp.StatusCode)
	}
	if string(body) != "[Speaker 1]: hola" {
		t.Errorf("Unexpected transcript %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected text/plain, got %q", ct)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID+"/transcript?download=1", nil, "")
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "transcript.txt") {
		t.Errorf("Expected attachment header, got %q", cd)
	}

	// Completed is terminal until reset
	resp, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/transcribe", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 on completed session, got %d", resp.StatusCode)
	}

	uploads := []struct {
		name, contentType, content string
	}{
		{"other.wav", "audio/wav", "RIFF....WAVE"},
		{"notes.txt", "text/plain", "plain text"},
	}
	for _, u := range uploads {
		resp, body = env.upload(t, snap.ID, u.name, u.contentType, []byte(u.content))
		if resp.StatusCode != http.StatusConflict || !strings.Contains(string(body), "needs_reset") {
			t.Errorf("Expected 409 needs_reset uploading %s to completed session, got %d: %s", u.name, resp.StatusCode, body)
		}
	}
	resp, body = env.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID+"/transcript", nil, "")
	if resp.StatusCode != http.StatusOK || string(body) != "[Speaker 1]: hola" {
		t.Errorf("Transcript should survive a rejected upload, got %d %q", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/reset", nil, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"state":"idle"`) {
		t.Errorf("Reset failed: %d %s", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID+"/transcript", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 after reset, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/transcribe", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without a file, got %d", resp.StatusCode)
	}
}

func TestInjectedCredential(t *testing.T) {
	env := newTestEnv(t, "injected-key")
	snap := env.createSession(t)
	env.upload(t, snap.ID, "talk.mp4", "video/mp4", []byte("...."))

	resp, body := env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/transcribe", nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", resp.StatusCode, body)
	}
	if key := <-env.runner.keys; key != "injected-key" {
		t.Errorf("Expected injected key, got %q", key)
	}
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t, "")
	snap := env.createSession(t)

	resp, body := env.upload(t, snap.ID, "notes.txt", "text/plain", []byte("just text"))
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "invalid_input") {
		t.Errorf("Expected invalid_input error, got %s", body)
	}

	resp, _ = env.upload(t, snap.ID, "big.wav", "audio/wav", make([]byte, env.cfg.Upload.MaxBytes+1))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPut, "/api/v1/sessions/"+snap.ID+"/file", strings.NewReader("x"), "text/plain")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without multipart body, got %d", resp.StatusCode)
	}

	entries, err := os.ReadDir(env.cfg.Upload.Dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Rejected uploads must not be stored, found %d files", len(entries))
	}
}

func TestUploadDetectsTypeFromName(t *testing.T) {
	env := newTestEnv(t, "")
	snap := env.createSession(t)

	resp, body := env.upload(t, snap.ID, "voice.m4a", "application/octet-stream", []byte("...."))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"media_type":"audio/mp4"`) {
		t.Errorf("Expected detected audio/mp4, got %s", body)
	}
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sessions/nope"},
		{http.MethodDelete, "/api/v1/sessions/nope"},
		{http.MethodPost, "/api/v1/sessions/nope/transcribe"},
		{http.MethodPost, "/api/v1/sessions/nope/reset"},
		{http.MethodGet, "/api/v1/sessions/nope/transcript"},
	} {
		resp, _ := env.do(t, req.method, req.path, nil, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", req.method, req.path, resp.StatusCode)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, "")
	snap := env.createSession(t)

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/sessions/"+snap.ID, nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}

	_, body := env.do(t, http.MethodGet, "/api/v1/sessions", nil, "")
	if !strings.Contains(string(body), `"total_sessions":0`) {
		t.Errorf("Expected no sessions, got %s", body)
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, "k")
	snap := env.createSession(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/sessions/" + snap.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first session.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if first.ID != snap.ID || first.State != session.StateIdle {
		t.Errorf("Unexpected initial snapshot %+v", first)
	}

	env.upload(t, snap.ID, "clip.wav", "audio/wav", []byte("RIFF"))
	env.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/transcribe", nil, "")

	for {
		var update session.Snapshot
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("Did not observe completion: %v", err)
		}
		if update.State == session.StateCompleted {
			if update.Result == nil || update.Result.Text != "[Speaker 1]: hola" {
				t.Errorf("Unexpected result %+v", update.Result)
			}
			break
		}
	}

	// Removing the session ends the stream
	env.do(t, http.MethodDelete, "/api/v1/sessions/"+snap.ID, nil, "")
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("Expected going-away close, got %v", err)
			}
			break
		}
	}
}
