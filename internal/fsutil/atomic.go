// Package fsutil holds small file helpers shared by the config and cache
// layers.
package fsutil

import (
	"errors"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path so that readers only ever observe the
// old content or the complete new content.
//
//   - Ensures the parent directory exists (dirPerm).
//   - Writes to a temp file in the same directory (pattern as in os.CreateTemp).
//   - Syncs and closes the temp file, applies perm, then renames it over path.
//
// The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte, perm, dirPerm os.FileMode, pattern string) error {
	if path == "" {
		return errors.New("path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// After a successful rename this is a no-op.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
