// Command mock-gemini imitates the generateContent endpoint for local
// development. It checks that the inline audio is a readable WAV container
// and answers with a fixed transcript.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/elian-pro/Transcribir/internal/audio"
	"github.com/elian-pro/Transcribir/internal/bridge"
	"github.com/elian-pro/Transcribir/internal/logging"
)

const defaultTranscript = "[Speaker 1]: This is a test transcript of the uploaded audio."

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature float32 `json:"temperature"`
	} `json:"generationConfig"`
}

type mockServer struct {
	transcript string
	delay      time.Duration
	apiKey     string
	logger     *slog.Logger
}

func (m *mockServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/{model}", m.handleGenerate)
	return mux
}

func (m *mockServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	model, action, _ := strings.Cut(r.PathValue("model"), ":")
	if action != "generateContent" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown method "+action)
		return
	}

	key := r.Header.Get("x-goog-api-key")
	if key == "" || (m.apiKey != "" && key != m.apiKey) {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "API key not valid")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid JSON body: "+err.Error())
		return
	}

	var prompt, mimeType, data string
	for _, content := range req.Contents {
		for _, part := range content.Parts {
			if part.InlineData != nil {
				mimeType, data = part.InlineData.MimeType, part.InlineData.Data
			}
			if part.Text != "" {
				prompt = part.Text
			}
		}
	}

	if mimeType != "audio/wav" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("expected audio/wav inline data, got %q", mimeType))
		return
	}

	wav, err := bridge.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid WAV payload: "+err.Error())
		return
	}

	m.logger.Info("Transcription request received",
		slog.String("model", model),
		slog.Int("audio_bytes", len(wav)),
		slog.Int("sample_rate", int(info.SampleRate)),
		slog.Int("channels", int(info.Channels)),
		slog.Int("bits_per_sample", int(info.BitsPerSample)),
		slog.Float64("duration_seconds", info.Duration),
		slog.Float64("temperature", float64(req.GenerationConfig.Temperature)),
		slog.Int("prompt_length", len(prompt)),
	)

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-r.Context().Done():
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": m.transcript}},
			},
			"finishReason": "STOP",
		}},
		"modelVersion": model,
	})

	m.logger.Info("Transcription response sent", slog.String("text", m.transcript))
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"code": code, "message": message, "status": status},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	transcript := flag.String("text", defaultTranscript, "transcript returned for every request")
	delay := flag.Duration("delay", 200*time.Millisecond, "simulated processing time")
	apiKey := flag.String("api-key", "", "accept only this key (any non-empty key when blank)")
	flag.Parse()

	logger := slog.New(logging.NewHandler(os.Stderr, "text", nil))

	m := &mockServer{
		transcript: *transcript,
		delay:      *delay,
		apiKey:     *apiKey,
		logger:     logger,
	}

	logger.Info("Mock Gemini server starting",
		slog.String("address", *addr),
		slog.String("endpoint", fmt.Sprintf("http://localhost%s/v1beta", *addr)),
	)

	if err := http.ListenAndServe(*addr, m.routes()); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
