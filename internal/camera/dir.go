package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirSource replays JPEG frames from a directory in filename order, looping
// forever. Used for development and for exercising the pipeline in tests
// without any camera hardware.
type DirSource struct {
	dir   string
	files []string
	next  int
	mu    sync.Mutex
}

// NewDirSource creates a directory-backed frame source.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Open scans the directory for JPEG frames.
func (s *DirSource) Open() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") {
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no frames in %s", ErrUnavailable, s.dir)
	}
	sort.Strings(files)

	s.mu.Lock()
	s.files = files
	s.next = 0
	s.mu.Unlock()
	return nil
}

// Capture returns the next frame in the loop.
func (s *DirSource) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.files) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: source not opened", ErrUnavailable)
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read frame %s: %w", path, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not decode frame %s: %w", path, err)
	}

	return &Frame{
		Data:    data,
		Width:   cfg.Width,
		Height:  cfg.Height,
		TakenAt: time.Now(),
	}, nil
}

// Close resets the source.
func (s *DirSource) Close() error {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
	return nil
}
