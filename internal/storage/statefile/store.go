// Package statefile keeps a single JSON document on disk, replaced atomically on every save.
package statefile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store persists a value of type T as JSON at a fixed path.
// A nil *Store is valid and never persists anything.
type Store[T any] struct {
	path string
}

// New creates the parent directory of path and returns a store for it.
func New[T any](path string) (*Store[T], error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}
	return &Store[T]{path: path}, nil
}

// Path returns the file location.
func (s *Store[T]) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads the stored value. It returns nil without error when nothing was saved yet.
func (s *Store[T]) Load() (*T, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read %s", s.path)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.path)
	}
	return &v, nil
}

// Save writes v through a synced temp file and renames it over the previous state.
func (s *Store[T]) Save(v T) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return errors.Wrap(err, "create state temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write state temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync state temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close state temp file")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrap(err, "persist state")
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
