package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Upload        UploadConfig        `yaml:"upload"`
	Session       SessionConfig       `yaml:"session"`
	Decoder       DecoderConfig       `yaml:"decoder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Credential    CredentialConfig    `yaml:"credential"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// UploadConfig controls where uploaded media is kept while a session uses it
type UploadConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// SessionConfig contains session lifecycle parameters
type SessionConfig struct {
	Timeout         int `yaml:"timeout"`          // seconds of inactivity before a session expires
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
}

// DecoderConfig locates the external decoding tools
type DecoderConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Provider      string  `yaml:"provider"` // "gemini" or "openai"
	Endpoint      string  `yaml:"endpoint"`
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"api_key"` // deploy-time credential, optional
	Prompt        string  `yaml:"prompt"`
	Temperature   float32 `yaml:"temperature"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// CredentialConfig describes where credentials are looked up
type CredentialConfig struct {
	EnvKeys   []string `yaml:"env_keys"`
	EnvFile   string   `yaml:"env_file"`
	StorePath string   `yaml:"store_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "transcribir")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			Address:         "0.0.0.0",
			ShutdownTimeout: 10,
		},
		Upload: UploadConfig{
			Dir:      filepath.Join(os.TempDir(), "transcribir"),
			MaxBytes: 512 << 20,
		},
		Session: SessionConfig{
			Timeout:         3600,
			CleanupInterval: 60,
		},
		Decoder: DecoderConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Transcription: TranscriptionConfig{
			Provider:      "gemini",
			Temperature:   0.1,
			Timeout:       300,
			MaxConcurrent: 4,
		},
		Credential: CredentialConfig{
			EnvKeys:   []string{"GEMINI_API_KEY", "API_KEY"},
			EnvFile:   ".env",
			StorePath: filepath.Join(DefaultConfigDir(), "credentials.yaml"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. Missing fields keep their
// defaults and a leading ~ in paths is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.Upload.Dir = expandTilde(config.Upload.Dir)
	config.Credential.EnvFile = expandTilde(config.Credential.EnvFile)
	config.Credential.StorePath = expandTilde(config.Credential.StorePath)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Credential.Validate(); err != nil {
		return fmt.Errorf("credential config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates upload configuration
func (u *UploadConfig) Validate() error {
	if u.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if u.MaxBytes < 1024 {
		return fmt.Errorf("max_bytes must be at least 1024 bytes, got %d", u.MaxBytes)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", s.CleanupInterval)
	}

	return nil
}

// Validate validates decoder configuration
func (d *DecoderConfig) Validate() error {
	if d.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if d.FFprobePath == "" {
		return fmt.Errorf("ffprobe_path cannot be empty")
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("provider must be 'gemini' or 'openai', got '%s'", t.Provider)
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates credential configuration
func (c *CredentialConfig) Validate() error {
	for _, key := range c.EnvKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("env_keys cannot contain empty names")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetShutdownTimeoutDuration returns the HTTP shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetTimeoutDuration returns the session timeout as a time.Duration
func (s *SessionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetCleanupIntervalDuration returns the cleanup interval as a time.Duration
func (s *SessionConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
