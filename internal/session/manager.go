package session

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/elian-pro/Transcribir/internal/credential"
	"github.com/elian-pro/Transcribir/internal/metrics"
	"github.com/elian-pro/Transcribir/internal/pipeline"
	"github.com/google/uuid"
)

// Runner executes one transcription attempt
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, apiKey string, onStage func(pipeline.Stage)) (*pipeline.Result, error)
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Timeout         time.Duration
	CleanupInterval time.Duration

	// Injected is consulted before a session's saved key
	Injected credential.Layer
}

// Manager manages all sessions and runs their attempts in the background
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   ManagerConfig
	runner   Runner
	metrics  *metrics.Metrics

	// Background work
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
	running sync.WaitGroup

	stopOnce sync.Once
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig, runner Runner, m *metrics.Metrics) *Manager {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		config:   config,
		runner:   runner,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// CreateSession creates an idle session with a fresh ID
func (m *Manager) CreateSession() *Session {
	s := newSession(uuid.NewString(), m.removeUpload)

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Session created", slog.String("session_id", s.ID))

	return s
}

// GetSession returns a session by ID
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	return s, exists
}

// GetActiveSessionCount returns the number of sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of every session (for monitoring)
func (m *Manager) GetAllSessions() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snapshots = append(snapshots, s.Snapshot())
	}
	return snapshots
}

// RemoveSession abandons a session's work and deletes its file
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	s, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	s.close()
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Duration("duration", time.Since(s.CreatedAt)),
	)

	return true
}

// Process starts an attempt for the session's file. The credential is
// resolved first (injected, then saved, then entered); when none is found
// the session stays idle and pipeline.ErrMissingCredential is returned.
// On success the attempt runs in the background and the origin of the
// credential used is returned.
func (m *Manager) Process(id, entered string) (credential.Origin, error) {
	s, exists := m.GetSession(id)
	if !exists {
		return "", ErrNotFound
	}

	if err := s.checkReady(); err != nil {
		return "", err
	}

	cred, err := credential.Resolve(
		m.config.Injected,
		credential.Static(credential.OriginSaved, s.savedCredential()),
		credential.Static(credential.OriginEntered, entered),
	)
	if err != nil {
		if errors.Is(err, credential.ErrMissing) {
			err = pipeline.ErrMissingCredential
			s.recordError(err)
			m.metrics.RecordPipelineRun(pipeline.Outcome(err))
		}
		return "", err
	}

	ctx, cancel := context.WithCancel(m.ctx)
	gen, input, err := s.begin(cancel)
	if err != nil {
		cancel()
		return "", err
	}

	m.logger.Info("Processing started",
		slog.String("session_id", id),
		slog.String("file", input.Name),
		slog.String("credential_origin", string(cred.Origin)),
	)

	m.running.Add(1)
	go func() {
		defer m.running.Done()

		result, err := m.runner.Run(ctx, input, cred.Value, func(stage pipeline.Stage) {
			s.advance(gen, stage)
		})

		if !s.finish(gen, result, err) {
			m.logger.Debug("Discarding outcome of superseded attempt",
				slog.String("session_id", id),
				slog.Uint64("generation", gen),
			)
			return
		}

		if err != nil {
			m.logger.Warn("Processing failed",
				slog.String("session_id", id),
				slog.String("outcome", pipeline.Outcome(err)),
				slog.String("error", err.Error()),
			)
			return
		}

		m.logger.Info("Processing completed",
			slog.String("session_id", id),
			slog.Float64("duration_seconds", result.SourceDurationSeconds),
			slog.Int("text_length", len(result.Text)),
		)
	}()

	return cred.Origin, nil
}

// Stop cancels running attempts, stops the cleanup routine and removes all sessions
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping session manager...")

		m.cancel()
		<-m.cleanup
		m.running.Wait()

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}
		m.metrics.SetActiveSessions(0)

		m.logger.Info("Session manager stopped", slog.Int("closed_sessions", len(sessions)))
	})
}

// startCleanupRoutine runs in a separate goroutine to clean up expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Debug("Session cleanup routine started",
		slog.Duration("timeout", m.config.Timeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

func (m *Manager) cleanupExpiredSessions() {
	if m.config.Timeout <= 0 {
		return
	}

	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, s := range m.sessions {
		if s.expired(now, m.config.Timeout) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.logger.Info("Cleaning up expired sessions", slog.Int("expired_count", len(expired)))

	for _, id := range expired {
		if m.RemoveSession(id) {
			m.metrics.RecordSessionExpired()
		}
	}
}

func (m *Manager) removeUpload(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("Failed to remove upload",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
