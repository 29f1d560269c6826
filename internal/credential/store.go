package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore keeps a single saved API key in a YAML file readable only by the owner
type FileStore struct {
	path string
}

type storedCredential struct {
	APIKey  string    `yaml:"api_key"`
	SavedAt time.Time `yaml:"saved_at"`
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the saved key, or "" when nothing has been saved
func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential store %s: %w", s.path, err)
	}

	var stored storedCredential
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("failed to parse credential store %s: %w", s.path, err)
	}

	return stored.APIKey, nil
}

// Save writes key to the store, replacing any previous key
func (s *FileStore) Save(key string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}

	data, err := yaml.Marshal(storedCredential{APIKey: key, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move credential store: %w", err)
	}

	return nil
}

// Clear removes the saved key
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential store: %w", err)
	}
	return nil
}

// Layer exposes the store as the saved credential source
func (s *FileStore) Layer() Layer {
	return Layer{Origin: OriginSaved, Lookup: s.Load}
}
