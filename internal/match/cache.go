package match

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// CacheSnapshot is the on-disk form of the template working set. It lets the
// kiosk come up and recognize faces while the enrollment directory is
// unreachable.
type CacheSnapshot struct {
	Employees   []Employee
	Descriptors []Descriptor
}

// SaveCache writes the snapshot next to the given path, then renames it into
// place so readers never see a partial file.
func SaveCache(path string, snapshot CacheSnapshot) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode template cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write template cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace template cache: %w", err)
	}
	return nil
}

// LoadCache reads a snapshot written by SaveCache.
func LoadCache(path string) (CacheSnapshot, error) {
	var snapshot CacheSnapshot

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return snapshot, fmt.Errorf("failed to read template cache: %w", err)
	}

	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("failed to decode template cache: %w", err)
	}
	return snapshot, nil
}
