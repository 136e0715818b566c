package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSource captures frames from a local capture daemon that exposes a
// single-snapshot endpoint (GET /snapshot returning a JPEG). This keeps the
// kiosk process free of any device-level camera code.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	opened  bool
}

// NewHTTPSource creates a snapshot-based camera source.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Open verifies the capture daemon is reachable.
func (s *HTTPSource) Open() error {
	resp, err := s.client.Get(s.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: capture daemon returned status %d", ErrUnavailable, resp.StatusCode)
	}
	s.opened = true
	return nil
}

// Capture fetches one snapshot from the capture daemon.
func (s *HTTPSource) Capture(ctx context.Context) (*Frame, error) {
	if !s.opened {
		return nil, fmt.Errorf("%w: source not opened", ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: snapshot returned status %d", ErrUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read snapshot body: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not decode snapshot: %w", err)
	}

	return &Frame{
		Data:    data,
		Width:   cfg.Width,
		Height:  cfg.Height,
		TakenAt: time.Now(),
	}, nil
}

// Close marks the source closed. The capture daemon owns the device.
func (s *HTTPSource) Close() error {
	s.opened = false
	return nil
}
