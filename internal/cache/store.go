// Package cache persists holiday snapshots as a single JSON document.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"holidaysjp/internal/fsutil"
	"holidaysjp/internal/model"
)

// Store reads and writes one snapshot file. The file is always replaced
// wholesale; a reader sees either the previous or the new snapshot.
type Store struct {
	path string
}

// NewStore returns a Store for the snapshot at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file wraps fs.ErrNotExist; an
// undecodable one additionally wraps model.ErrParse. Both wrap
// model.ErrCacheIO and mean the caller needs a full download.
func (s *Store) Load() (model.Snapshot, error) {
	if s.path == "" {
		return model.Snapshot{}, fmt.Errorf("%w: cache path is empty", model.ErrCacheIO)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: read %s: %w", model.ErrCacheIO, s.path, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: decode %s: %w", model.ErrCacheIO, s.path, errors.Join(model.ErrParse, err))
	}
	if snap.Metadata.LastUpdated.IsZero() {
		return model.Snapshot{}, fmt.Errorf("%w: decode %s: %w", model.ErrCacheIO, s.path,
			errors.Join(model.ErrParse, errors.New("metadata.last_updated missing")))
	}
	if snap.Holidays == nil {
		snap.Holidays = make(model.HolidayMap)
	}
	return snap, nil
}

// Save writes snap atomically, creating missing parent directories.
func (s *Store) Save(snap model.Snapshot) error {
	if s.path == "" {
		return fmt.Errorf("%w: cache path is empty", model.ErrCacheIO)
	}
	if snap.Holidays == nil {
		snap.Holidays = make(model.HolidayMap)
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", model.ErrCacheIO, err)
	}

	if err := fsutil.WriteFileAtomic(s.path, data, 0o644, 0o755, ".holidays-*.tmp"); err != nil {
		return fmt.Errorf("%w: write %s: %w", model.ErrCacheIO, s.path, err)
	}
	return nil
}
