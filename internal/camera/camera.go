// Package camera abstracts the kiosk's frame source behind a small interface
// so the recognition pipeline can run against real hardware, a capture
// daemon, or a directory of test frames.
package camera

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the camera cannot be opened or has stopped
// producing frames. The runtime treats it as a hardware fault.
var ErrUnavailable = errors.New("camera unavailable")

// Frame is a single captured camera frame, JPEG encoded.
type Frame struct {
	Data    []byte
	Width   int
	Height  int
	TakenAt time.Time
}

// Source provides exclusive access to a camera. Capture must never be called
// concurrently; the runtime owns the source and serializes all access.
type Source interface {
	// Open acquires the camera. Must be called before the first Capture.
	Open() error
	// Capture grabs one frame. Returns ErrUnavailable (possibly wrapped)
	// when the device is gone.
	Capture(ctx context.Context) (*Frame, error)
	// Close releases the camera. Safe to call more than once.
	Close() error
}
