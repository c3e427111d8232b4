// Package keystore persists the active answer key as a small JSON file.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"

	"github.com/ironsheep/omr-scan-mcp/internal/omr"
)

// slot is the key file's location relative to the XDG data directory.
const slot = "omr-scan/answer-key.json"

// DefaultPath returns $XDG_DATA_HOME/omr-scan/answer-key.json, creating the
// parent directory if needed.
func DefaultPath() (string, error) {
	return xdg.DataFile(slot)
}

// FileStore keeps one answer key in a JSON object such as {"1":0,"2":3}.
// It implements omr.KeyStore.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// New returns a store backed by path. An empty path uses DefaultPath.
func New(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve key path: %w", err)
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the stored key. A missing file is an empty key.
func (s *FileStore) Load() (omr.AnswerMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return omr.AnswerMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read answer key: %w", err)
	}
	key := omr.AnswerMap{}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse answer key %s: %w", s.path, err)
	}
	return key, nil
}

// Save replaces the stored key. The file is written beside the target and
// renamed into place so a crash never leaves a truncated key.
func (s *FileStore) Save(key omr.AnswerMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write answer key: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write answer key: %w", err)
	}
	return nil
}

// Clear deletes the stored key. Clearing an absent key is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear answer key: %w", err)
	}
	return nil
}
