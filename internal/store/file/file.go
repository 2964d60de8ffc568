// Package file persists the geofence set as a JSON file on disk.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wastehaul/dispatchd/internal/domain"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Save writes the full set atomically: temp file in the same directory, then
// rename. A crash mid-write never corrupts the previous blob.
func (s *Store) Save(ctx context.Context, fences []domain.Geofence) error {
	data, err := json.MarshalIndent(fences, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file store: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "geofences-*.json")
	if err != nil {
		return fmt.Errorf("file store: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: close: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

// Load reads the persisted set. A missing file is an empty set, not an
// error: first boot has nothing to reload.
func (s *Store) Load(ctx context.Context) ([]domain.Geofence, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store: read: %w", err)
	}

	var fences []domain.Geofence
	if err := json.Unmarshal(data, &fences); err != nil {
		return nil, fmt.Errorf("file store: unmarshal: %w", err)
	}
	return fences, nil
}
