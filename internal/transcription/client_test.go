package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elian-pro/Transcribir/internal/bridge"
	"github.com/elian-pro/Transcribir/internal/logging"
)

func newGeminiServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *GeminiClient) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewGeminiClient(Config{
		Endpoint:      server.URL + "/v1beta/",
		Model:         "test-model",
		Timeout:       5 * time.Second,
		MaxConcurrent: 2,
	}, logging.Discard())
	return server, client
}

func TestGeminiTranscribe(t *testing.T) {
	audioData := []byte("RIFF....WAVEfmt fake wav payload")

	var captured geminiRequest
	var path, apiKey string
	_, client := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[Speaker 1]: hola "},{"text":"mundo"}]},"finishReason":"STOP"}]}`)
	})

	resp, err := client.Transcribe(context.Background(), &Request{
		Audio:       audioData,
		Temperature: DefaultTemperature,
		APIKey:      "secret",
		RequestID:   "req-1",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if resp.Text != "[Speaker 1]: hola mundo" {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if resp.Provider != ProviderGemini || resp.Model != "test-model" || resp.RequestID != "req-1" {
		t.Errorf("Unexpected response metadata %+v", resp)
	}

	if path != "/v1beta/models/test-model:generateContent" {
		t.Errorf("Unexpected path %q", path)
	}
	if apiKey != "secret" {
		t.Errorf("Expected API key header, got %q", apiKey)
	}

	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("Expected one content with two parts, got %+v", captured.Contents)
	}
	inline := captured.Contents[0].Parts[0].InlineData
	if inline == nil {
		t.Fatal("Expected inline data part first")
	}
	if inline.MimeType != "audio/wav" {
		t.Errorf("Expected audio/wav, got %q", inline.MimeType)
	}
	decoded, err := bridge.Decode(inline.Data)
	if err != nil || string(decoded) != string(audioData) {
		t.Errorf("Inline data does not round-trip: %v", err)
	}
	if captured.Contents[0].Parts[1].Text != DefaultPrompt {
		t.Errorf("Expected default prompt, got %q", captured.Contents[0].Parts[1].Text)
	}
	if captured.GenerationConfig.Temperature != 0.1 {
		t.Errorf("Expected temperature 0.1, got %f", captured.GenerationConfig.Temperature)
	}

	stats := client.Stats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 || stats.SuccessRate != 100 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestGeminiUsesBridgedPayload(t *testing.T) {
	var captured geminiRequest
	_, client := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	})

	_, err := client.Transcribe(context.Background(), &Request{
		AudioBase64: bridge.DataURI("audio/wav", []byte{1, 2, 3}),
		Prompt:      "custom prompt",
		APIKey:      "k",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if got := captured.Contents[0].Parts[0].InlineData.Data; got != "AQID" {
		t.Errorf("Expected data URI prefix to be stripped, got %q", got)
	}
	if got := captured.Contents[0].Parts[1].Text; got != "custom prompt" {
		t.Errorf("Expected custom prompt, got %q", got)
	}
}

func TestGeminiFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantEmpty bool
		contains  string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`,
			contains: "API key not valid",
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `upstream exploded`,
			contains: "HTTP error 500",
		},
		{
			name:      "no candidates",
			status:    http.StatusOK,
			body:      `{"candidates":[]}`,
			wantEmpty: true,
		},
		{
			name:      "whitespace only",
			status:    http.StatusOK,
			body:      `{"candidates":[{"content":{"parts":[{"text":"  \n"}]}}]}`,
			wantEmpty: true,
		},
		{
			name:     "blocked",
			status:   http.StatusOK,
			body:     `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			contains: "SAFETY",
		},
		{
			name:     "malformed json",
			status:   http.StatusOK,
			body:     `{"candidates":`,
			contains: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			_, client := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.Transcribe(context.Background(), &Request{Audio: []byte{0}, APIKey: "k"})
			if !errors.Is(err, ErrTranscriptionFailed) {
				t.Fatalf("Expected ErrTranscriptionFailed, got %v", err)
			}
			if tt.wantEmpty && !errors.Is(err, ErrEmptyTranscript) {
				t.Errorf("Expected ErrEmptyTranscript, got %v", err)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected error to contain %q, got %q", tt.contains, err.Error())
			}

			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("Expected exactly one request (no retries), got %d", n)
			}

			stats := client.Stats()
			if stats.FailedRequests != 1 {
				t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
			}
		})
	}
}

func TestMissingAPIKeySkipsNetwork(t *testing.T) {
	var calls int32
	_, client := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.Transcribe(context.Background(), &Request{Audio: []byte{0}})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Expected ErrMissingAPIKey, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("No request should be sent without an API key")
	}
	if client.Stats().TotalRequests != 0 {
		t.Error("Rejected call should not count as a request")
	}

	openaiClient := NewOpenAIClient(Config{Endpoint: "http://127.0.0.1:1"}, logging.Discard())
	if _, err := openaiClient.Transcribe(context.Background(), &Request{Audio: []byte{0}}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey from openai client, got %v", err)
	}
}

func TestGeminiContextCancelled(t *testing.T) {
	release := make(chan struct{})
	_, client := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Transcribe(ctx, &Request{Audio: []byte{0}, APIKey: "k"})
	if err == nil {
		t.Fatal("Expected error when context expires")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded in chain, got %v", err)
	}
}

func TestSemaphoreLimitsConcurrency(t *testing.T) {
	client := newBaseClient(Config{MaxConcurrent: 1})

	if err := client.acquire(context.Background()); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if got := client.stats("x").ActiveRequests; got != 1 {
		t.Errorf("Expected 1 active request, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := client.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected second acquire to time out, got %v", err)
	}

	client.release()
	if got := client.stats("x").ActiveRequests; got != 0 {
		t.Errorf("Expected 0 active requests, got %d", got)
	}
}

func TestSaturatedClientWrapsFailure(t *testing.T) {
	var calls int32
	_, gemini := newGeminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	openaiClient := NewOpenAIClient(Config{Endpoint: "http://127.0.0.1:1/v1", Timeout: time.Second, MaxConcurrent: 1}, logging.Discard())

	tests := []struct {
		name     string
		provider Provider
		hold     func(ctx context.Context) error
		release  func()
	}{
		{"gemini", gemini, gemini.acquire, gemini.release},
		{"openai", openaiClient, openaiClient.acquire, openaiClient.release},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fill every slot so Transcribe has to wait
			var held int
			for {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
				err := tt.hold(ctx)
				cancel()
				if err != nil {
					break
				}
				held++
			}
			defer func() {
				for i := 0; i < held; i++ {
					tt.release()
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			_, err := tt.provider.Transcribe(ctx, &Request{Audio: []byte{0}, APIKey: "k"})
			if !errors.Is(err, ErrTranscriptionFailed) {
				t.Errorf("Expected ErrTranscriptionFailed, got %v", err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Expected deadline exceeded in chain, got %v", err)
			}
		})
	}

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("No request should reach the server, got %d", n)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	var model, prompt, filename, auth string
	var fileSize int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		model = r.FormValue("model")
		prompt = r.FormValue("prompt")
		if file, header, err := r.FormFile("file"); err == nil {
			filename = header.Filename
			fileSize = header.Size
			file.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"  hello world  "}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{Endpoint: server.URL + "/v1", MaxConcurrent: 1}, logging.Discard())
	resp, err := client.Transcribe(context.Background(), &Request{
		Audio:       []byte("0123456789"),
		Prompt:      "names: Ana, Luis",
		Temperature: 0.1,
		APIKey:      "sk-test",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if resp.Text != "hello world" {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if model != "whisper-1" {
		t.Errorf("Expected whisper-1, got %q", model)
	}
	if prompt != "names: Ana, Luis" {
		t.Errorf("Unexpected prompt %q", prompt)
	}
	if filename != "audio.wav" || fileSize != 10 {
		t.Errorf("Unexpected file %q (%d bytes)", filename, fileSize)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Unexpected auth header %q", auth)
	}
	if stats := client.Stats(); stats.Provider != ProviderOpenAI || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestOpenAIFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantEmpty bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, false},
		{"empty text", http.StatusOK, `{"text":""}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewOpenAIClient(Config{Endpoint: server.URL + "/v1"}, logging.Discard())
			_, err := client.Transcribe(context.Background(), &Request{Audio: []byte{0}, APIKey: "k"})
			if !errors.Is(err, ErrTranscriptionFailed) {
				t.Fatalf("Expected ErrTranscriptionFailed, got %v", err)
			}
			if tt.wantEmpty != errors.Is(err, ErrEmptyTranscript) {
				t.Errorf("ErrEmptyTranscript = %v, want %v", errors.Is(err, ErrEmptyTranscript), tt.wantEmpty)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{"gemini", ProviderGemini, false},
		{"", ProviderGemini, false},
		{"openai", ProviderOpenAI, false},
		{"carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		p, err := New(Config{Provider: tt.provider}, logging.Discard())
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for provider %q", tt.provider)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q) failed: %v", tt.provider, err)
		}
		if p.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.provider, p.Name(), tt.want)
		}
		if err := p.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}
}
