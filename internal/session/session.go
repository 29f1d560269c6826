package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elian-pro/Transcribir/internal/decode"
	"github.com/elian-pro/Transcribir/internal/pipeline"
)

// State is the user-visible status of a session
type State string

const (
	StateIdle         State = "idle"
	StateExtracting   State = "extracting_audio"
	StateTranscribing State = "transcribing"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

const (
	progressIdle         = 0
	progressExtracting   = 25
	progressTranscribing = 50
	progressCompleted    = 100
)

var (
	ErrNotFound = errors.New("session not found")
	ErrNoFile   = errors.New("no file selected")
	ErrBusy     = errors.New("session is already processing")
	ErrNotReady = errors.New("transcript not available")

	ErrNeedsReset = errors.New("session must be reset first")
)

// Upload is a media file stored for a session
type Upload struct {
	Path      string `json:"-"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
}

// Snapshot is a consistent copy of a session's state
type Snapshot struct {
	ID              string           `json:"id"`
	State           State            `json:"state"`
	Progress        int              `json:"progress"`
	File            *Upload          `json:"file,omitempty"`
	Result          *pipeline.Result `json:"result,omitempty"`
	Error           string           `json:"error,omitempty"`
	ErrorKind       string           `json:"error_kind,omitempty"`
	CredentialSaved bool             `json:"credential_saved"`
	CreatedAt       time.Time        `json:"created_at"`
	LastActivity    time.Time        `json:"last_activity"`
	ProcessingCount uint64           `json:"processing_count"`
}

// Session is one user's workspace. All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	state        State
	progress     int
	file         *Upload
	credential   string
	result       *pipeline.Result
	err          error
	lastActivity time.Time

	// generation identifies the current attempt; results from older
	// generations are dropped
	generation      uint64
	cancel          context.CancelFunc
	processingCount uint64

	subscribers map[chan Snapshot]struct{}
	removeFile  func(path string)

	mu sync.RWMutex
}

func newSession(id string, removeFile func(string)) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		state:        StateIdle,
		lastActivity: now,
		subscribers:  make(map[chan Snapshot]struct{}),
		removeFile:   removeFile,
	}
}

// SelectFile replaces the session's file. Any running attempt is
// abandoned and the session returns to idle with no result or error.
// An unsupported type leaves the session unchanged apart from the error.
// A completed or failed session returns ErrNeedsReset and is not changed.
func (s *Session) SelectFile(upload *Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()

	if s.state == StateCompleted || s.state == StateError {
		return ErrNeedsReset
	}

	if upload == nil || !decode.IsSupported(upload.MediaType) {
		mediaType := ""
		if upload != nil {
			mediaType = upload.MediaType
		}
		s.err = fmt.Errorf("%w: %q is not an audio or video type", pipeline.ErrInvalidInput, mediaType)
		s.publishLocked()
		return s.err
	}

	s.abandonLocked()
	s.replaceFileLocked(upload)
	s.state = StateIdle
	s.progress = progressIdle
	s.result = nil
	s.err = nil
	s.publishLocked()

	return nil
}

// SaveCredential stores a key for later attempts in this session
func (s *Session) SaveCredential(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credential = key
	s.lastActivity = time.Now()
	s.publishLocked()
}

// Reset abandons any running attempt and clears the file, result and error
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()
	s.replaceFileLocked(nil)
	s.state = StateIdle
	s.progress = progressIdle
	s.result = nil
	s.err = nil
	s.lastActivity = time.Now()
	s.publishLocked()
}

// Transcript returns the text of a completed attempt
func (s *Session) Transcript() (*pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateCompleted || s.result == nil {
		return nil, ErrNotReady
	}
	return s.result, nil
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives the current snapshot and then
// one after every change. Slow readers only see the latest snapshot.
// The channel is closed by the returned cancel function or when the
// session is removed.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

// begin moves an idle session with a file into extracting and returns the
// attempt's generation and input
func (s *Session) begin(cancel context.CancelFunc) (uint64, pipeline.Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, pipeline.Input{}, ErrNoFile
	}
	if s.state != StateIdle {
		return 0, pipeline.Input{}, ErrBusy
	}

	s.generation++
	s.processingCount++
	s.cancel = cancel
	s.state = StateExtracting
	s.progress = progressExtracting
	s.result = nil
	s.err = nil
	s.lastActivity = time.Now()
	s.publishLocked()

	return s.generation, pipeline.Input{
		Path:      s.file.Path,
		Name:      s.file.Name,
		MediaType: s.file.MediaType,
	}, nil
}

// checkReady reports whether begin would succeed, without changing state
func (s *Session) checkReady() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.file == nil {
		return ErrNoFile
	}
	if s.state != StateIdle {
		return ErrBusy
	}
	return nil
}

// advance records a pipeline stage if gen is still current
func (s *Session) advance(gen uint64, stage pipeline.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}

	switch stage {
	case pipeline.StageExtracting:
		s.state = StateExtracting
		s.progress = progressExtracting
	case pipeline.StageTranscribing:
		s.state = StateTranscribing
		s.progress = progressTranscribing
	}
	s.lastActivity = time.Now()
	s.publishLocked()
}

// finish records the outcome of attempt gen. It reports false when the
// attempt was superseded and its outcome dropped.
func (s *Session) finish(gen uint64, result *pipeline.Result, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.cancel == nil {
		return false
	}

	s.cancel()
	s.cancel = nil
	s.lastActivity = time.Now()

	if err != nil {
		s.state = StateError
		s.err = err
	} else {
		s.state = StateCompleted
		s.progress = progressCompleted
		s.result = result
	}
	s.publishLocked()

	return true
}

// recordError shows err without changing state
func (s *Session) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
	s.lastActivity = time.Now()
	s.publishLocked()
}

func (s *Session) savedCredential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// expired reports whether the session has been inactive for longer than
// timeout. Sessions with an attempt in progress never expire.
func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateExtracting || s.state == StateTranscribing {
		return false
	}
	return now.Sub(s.lastActivity) > timeout
}

// close abandons work, deletes the file and ends all subscriptions
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()
	s.replaceFileLocked(nil)

	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// abandonLocked cancels the running attempt and invalidates its generation
func (s *Session) abandonLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}

func (s *Session) replaceFileLocked(upload *Upload) {
	if s.file != nil && s.removeFile != nil && (upload == nil || upload.Path != s.file.Path) {
		s.removeFile(s.file.Path)
	}
	s.file = upload
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:              s.ID,
		State:           s.state,
		Progress:        s.progress,
		Result:          s.result,
		CredentialSaved: s.credential != "",
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.lastActivity,
		ProcessingCount: s.processingCount,
	}

	if s.file != nil {
		file := *s.file
		snap.File = &file
	}

	if s.err != nil {
		snap.Error = pipeline.UserMessage(s.err)
		snap.ErrorKind = pipeline.Outcome(s.err)
	}

	return snap
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		// Replace an unread snapshot so the reader always gets the latest
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
