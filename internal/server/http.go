package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elian-pro/Transcribir/internal/config"
	"github.com/elian-pro/Transcribir/internal/credential"
	"github.com/elian-pro/Transcribir/internal/metrics"
	"github.com/elian-pro/Transcribir/internal/session"
	"github.com/elian-pro/Transcribir/internal/transcription"
)

const (
	serviceName    = "transcribir"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the session API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	engine   *gin.Engine
	logger   *slog.Logger
	config   *config.Config
	sessions *session.Manager
	provider transcription.Provider
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. Metrics are served from gatherer.
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, sessions *session.Manager,
	provider transcription.Provider, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		sessions:  sessions,
		provider:  provider,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	h.engine = gin.New()
	h.engine.Use(gin.Recovery(), h.withMetrics())
	h.engine.MaxMultipartMemory = 32 << 20
	h.setupRoutes(h.engine)

	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:           h.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// Handler returns the router, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.engine
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(r *gin.Engine) {
	r.GET("/", h.handleRoot)
	r.GET("/health", h.handleHealth)
	r.GET("/config", h.handleConfig)
	r.GET("/stats", h.handleStats)
	r.GET("/stats/transcription", h.handleTranscriptionStats)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	v1.GET("/sessions", h.listSessions)
	v1.POST("/sessions", h.createSession)
	v1.GET("/sessions/:id", h.getSession)
	v1.DELETE("/sessions/:id", h.deleteSession)
	v1.PUT("/sessions/:id/file", h.uploadFile)
	v1.PUT("/sessions/:id/credential", h.saveCredential)
	v1.POST("/sessions/:id/transcribe", h.transcribe)
	v1.POST("/sessions/:id/reset", h.resetSession)
	v1.GET("/sessions/:id/transcript", h.getTranscript)
	v1.GET("/sessions/:id/events", h.streamEvents)
}

// withMetrics records count, latency and errors per route
func (h *HTTPServer) withMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		if endpoint == "/metrics" {
			return
		}

		status := c.Writer.Status()
		duration := time.Since(startTime)
		h.metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), duration.Seconds())

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(c.Request.Method, endpoint, errorType)
		}

		h.logger.Debug("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("endpoint", endpoint),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		)
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(c *gin.Context) {
	transcriptionStats := h.provider.Stats()

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": gin.H{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": gin.H{
			"session_manager": gin.H{
				"status":          "running",
				"active_sessions": h.sessions.GetActiveSessionCount(),
			},
			"transcription": gin.H{
				"status":          "running",
				"provider":        h.provider.Name(),
				"total_requests":  transcriptionStats.TotalRequests,
				"success_rate":    transcriptionStats.SuccessRate,
				"active_requests": transcriptionStats.ActiveRequests,
			},
		},
	})
}

// handleConfig returns the configuration without secrets
func (h *HTTPServer) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"http": gin.H{
			"port":    h.config.HTTP.Port,
			"address": h.config.HTTP.Address,
		},
		"upload": gin.H{
			"max_bytes": h.config.Upload.MaxBytes,
		},
		"session": gin.H{
			"timeout":          h.config.Session.Timeout,
			"cleanup_interval": h.config.Session.CleanupInterval,
		},
		"transcription": gin.H{
			"provider":       h.config.Transcription.Provider,
			"endpoint":       h.config.Transcription.Endpoint,
			"model":          h.config.Transcription.Model,
			"temperature":    h.config.Transcription.Temperature,
			"timeout":        h.config.Transcription.Timeout,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"api_key":        credential.Mask(h.config.Transcription.APIKey),
		},
		"credential": gin.H{
			"env_keys": h.config.Credential.EnvKeys,
		},
		"logging": gin.H{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"transcription": h.provider.Stats(),
		"sessions": gin.H{
			"active_count": h.sessions.GetActiveSessionCount(),
		},
	})
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.provider.Stats())
}

// handleRoot lists the available endpoints
func (h *HTTPServer) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Transcribir media transcription service",
		"version": serviceVersion,
		"endpoints": gin.H{
			"GET /":                                 "API documentation",
			"GET /health":                           "Service health check",
			"GET /config":                           "Service configuration",
			"GET /stats":                            "Service statistics",
			"GET /stats/transcription":              "Transcription statistics",
			"GET /metrics":                          "Prometheus metrics",
			"GET /api/v1/sessions":                  "List sessions",
			"POST /api/v1/sessions":                 "Create a session",
			"GET /api/v1/sessions/{id}":             "Session state",
			"DELETE /api/v1/sessions/{id}":          "Remove a session",
			"PUT /api/v1/sessions/{id}/file":        "Select a media file (multipart field 'file')",
			"PUT /api/v1/sessions/{id}/credential":  "Save an API key for the session",
			"POST /api/v1/sessions/{id}/transcribe": "Start transcription",
			"POST /api/v1/sessions/{id}/reset":      "Reset the session",
			"GET /api/v1/sessions/{id}/transcript":  "Download the transcript",
			"GET /api/v1/sessions/{id}/events":      "WebSocket stream of session state",
		},
		"timestamp": time.Now().UTC(),
	})
}
