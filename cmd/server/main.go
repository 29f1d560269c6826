package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elian-pro/Transcribir/internal/config"
	"github.com/elian-pro/Transcribir/internal/credential"
	"github.com/elian-pro/Transcribir/internal/decode"
	"github.com/elian-pro/Transcribir/internal/logging"
	"github.com/elian-pro/Transcribir/internal/metrics"
	"github.com/elian-pro/Transcribir/internal/pipeline"
	"github.com/elian-pro/Transcribir/internal/server"
	"github.com/elian-pro/Transcribir/internal/session"
	"github.com/elian-pro/Transcribir/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "transcribir"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Configuration summary without secrets
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("upload_dir", cfg.Upload.Dir),
		slog.Int64("upload_max_bytes", cfg.Upload.MaxBytes),
		slog.String("ffmpeg_path", cfg.Decoder.FFmpegPath),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.String("log_level", cfg.Logging.Level),
	)

	gin.SetMode(gin.ReleaseMode)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	provider, err := transcription.New(transcription.ConfigFrom(cfg.Transcription), logger)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer provider.Close()

	decoders := decode.NewRegistry(logger,
		decode.NewWAVDecoder(),
		decode.NewFFmpegDecoder(cfg.Decoder.FFmpegPath, cfg.Decoder.FFprobePath, logger),
	)

	runner := pipeline.New(decoders, provider, pipeline.Options{
		Prompt:      cfg.Transcription.Prompt,
		Temperature: cfg.Transcription.Temperature,
	}, appMetrics, logger)

	dotenv, err := credential.ReadEnvFile(cfg.Credential.EnvFile)
	if err != nil {
		logger.Warn("Ignoring unreadable env file",
			slog.String("path", cfg.Credential.EnvFile),
			slog.String("error", err.Error()))
	}

	sessions := session.NewManager(logger, session.ManagerConfig{
		Timeout:         cfg.Session.GetTimeoutDuration(),
		CleanupInterval: cfg.Session.GetCleanupIntervalDuration(),
		Injected:        credential.InjectedLayer(cfg.Transcription.APIKey, cfg.Credential.EnvKeys, dotenv),
	}, runner, appMetrics)
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Session.GetTimeoutDuration()),
	)

	httpServer := server.NewHTTPServer(cfg, logger, sessions, provider, appMetrics, prometheus.DefaultGatherer)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...")
	<-ctx.Done()

	logger.Info("Starting graceful shutdown...")

	// Stop accepting requests before tearing sessions down
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeoutDuration())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	sessions.Stop()

	stats := provider.Stats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// loadConfig reads path, falling back to defaults when the default path is absent
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}
