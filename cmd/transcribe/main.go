// Command transcribe converts one audio or video file into a transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/atotto/clipboard"

	"github.com/elian-pro/Transcribir/internal/config"
	"github.com/elian-pro/Transcribir/internal/credential"
	"github.com/elian-pro/Transcribir/internal/decode"
	"github.com/elian-pro/Transcribir/internal/logging"
	"github.com/elian-pro/Transcribir/internal/pipeline"
	"github.com/elian-pro/Transcribir/internal/transcription"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", pipeline.UserMessage(err))
		fmt.Fprintf(os.Stderr, "Details: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	saveKey    bool
	copy       bool
	outputPath string
	mediaPath  string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	flags := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	flags.SetOutput(stderr)

	opts := &options{}
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default: ~/.config/transcribir/config.yaml)")
	flags.BoolVar(&opts.saveKey, "save-key", false, "remember an entered API key for later runs")
	flags.BoolVar(&opts.copy, "copy", false, "copy the transcript to the clipboard")
	flags.StringVar(&opts.outputPath, "o", "", "also write the transcript to this file")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: transcribe [flags] <media-file>")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return nil, fmt.Errorf("%w: expected exactly one media file", pipeline.ErrInvalidInput)
	}
	opts.mediaPath = flags.Arg(0)

	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	mediaType, err := sniffMediaType(opts.mediaPath)
	if err != nil {
		return err
	}

	dotenv, err := credential.ReadEnvFile(cfg.Credential.EnvFile)
	if err != nil {
		logger.Warn("Ignoring unreadable env file",
			slog.String("path", cfg.Credential.EnvFile),
			slog.String("error", err.Error()))
	}

	// The prompt is only read when no earlier source has a key
	store := credential.NewFileStore(cfg.Credential.StorePath)
	cred, err := credential.Resolve(
		credential.InjectedLayer(cfg.Transcription.APIKey, cfg.Credential.EnvKeys, dotenv),
		store.Layer(),
		credential.PromptLayer(stdin, stderr, "API key"),
	)
	if err != nil {
		if errors.Is(err, credential.ErrMissing) {
			return pipeline.ErrMissingCredential
		}
		return err
	}
	logger.Debug("Credential resolved", slog.String("origin", string(cred.Origin)))

	if opts.saveKey && cred.Origin == credential.OriginEntered {
		if err := store.Save(cred.Value); err != nil {
			logger.Warn("Failed to save API key", slog.String("error", err.Error()))
		} else {
			fmt.Fprintf(stderr, "API key saved to %s\n", store.Path())
		}
	}

	provider, err := transcription.New(transcription.ConfigFrom(cfg.Transcription), logger)
	if err != nil {
		return err
	}
	defer provider.Close()

	decoders := decode.NewRegistry(logger,
		decode.NewWAVDecoder(),
		decode.NewFFmpegDecoder(cfg.Decoder.FFmpegPath, cfg.Decoder.FFprobePath, logger),
	)

	p := pipeline.New(decoders, provider, pipeline.Options{
		Prompt:      cfg.Transcription.Prompt,
		Temperature: cfg.Transcription.Temperature,
	}, nil, logger)

	input := pipeline.Input{
		Path:      opts.mediaPath,
		Name:      filepath.Base(opts.mediaPath),
		MediaType: mediaType,
	}

	result, err := p.Run(ctx, input, cred.Value, func(stage pipeline.Stage) {
		switch stage {
		case pipeline.StageExtracting:
			fmt.Fprintln(stderr, "Extracting audio...")
		case pipeline.StageTranscribing:
			fmt.Fprintln(stderr, "Transcribing...")
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Duration: %s\n\n%s\n", formatDuration(result.SourceDurationSeconds), result.Text)

	if opts.outputPath != "" {
		if err := os.WriteFile(opts.outputPath, []byte(result.Text+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write transcript: %w", err)
		}
	}

	if opts.copy {
		if err := clipboard.WriteAll(result.Text); err != nil {
			logger.Warn("Failed to copy transcript", slog.String("error", err.Error()))
		} else {
			fmt.Fprintln(stderr, "Transcript copied to clipboard")
		}
	}

	return nil
}

// loadConfig loads path, or the default path when it exists, or defaults
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg, err := config.Load(config.DefaultConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// sniffMediaType detects the type of the file at path from its name and content
func sniffMediaType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pipeline.ErrInvalidInput, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return decode.DetectMediaType(path, head[:n]), nil
}

// formatDuration renders seconds as m:ss
func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
