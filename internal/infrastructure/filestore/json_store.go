// Package filestore persists the response cache as a single JSON file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

// DefaultPath is the cache file used when none is configured.
const DefaultPath = "chat_cache.json"

// JSONStore implements repository.SnapshotStore on top of a JSON file.
// Every Save rewrites the whole file.
type JSONStore struct {
	path string
}

// Compile-time verification that JSONStore implements repository.SnapshotStore.
var _ repository.SnapshotStore = (*JSONStore)(nil)

// NewJSONStore creates a store backed by the file at path.
// The file does not need to exist yet.
func NewJSONStore(path string) *JSONStore {
	if path == "" {
		path = DefaultPath
	}
	return &JSONStore{path: path}
}

// Path returns the backing file path.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the cache file.
// A missing file yields an empty snapshot without error.
func (s *JSONStore) Load(ctx context.Context) (model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewSnapshot(), nil
		}
		return model.NewSnapshot(), fmt.Errorf("read cache file: %w", err)
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return model.NewSnapshot(), fmt.Errorf("%w: %s: %v", repository.ErrCorruptSnapshot, s.path, err)
	}
	return snap, nil
}

// Save writes snap to a temporary file next to the target and renames it
// into place, so readers never observe a half-written file.
func (s *JSONStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
