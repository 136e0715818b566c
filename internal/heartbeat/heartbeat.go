// Package heartbeat reports kiosk liveness to the ledger on a fixed
// interval, independent of the recognition loop.
package heartbeat

import (
	"context"
	"log"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
)

// Pinger is the slice of the ledger client the reporter needs.
type Pinger interface {
	Heartbeat(ctx context.Context, report ledger.HeartbeatReport) error
}

// Reporter sends periodic heartbeats. Fire-and-forget with one quick retry;
// a failed heartbeat never blocks recognition and has no ordering coupling
// to the offline queue.
type Reporter struct {
	client   Pinger
	deviceID string
	version  string
	interval time.Duration

	cameraHealthy func() bool
	queueDepth    func() int
	onResult      func(online bool) // connectivity signal for the queue
}

// New creates a heartbeat reporter. cameraHealthy and queueDepth supply the
// health fields; onResult receives the online/offline signal after every
// attempt and may be nil.
func New(client Pinger, deviceID, version string, interval time.Duration,
	cameraHealthy func() bool, queueDepth func() int, onResult func(online bool)) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reporter{
		client:        client,
		deviceID:      deviceID,
		version:       version,
		interval:      interval,
		cameraHealthy: cameraHealthy,
		queueDepth:    queueDepth,
		onResult:      onResult,
	}
}

// Run sends heartbeats until the context is cancelled. The first beat goes
// out immediately so the ledger learns about a reboot quickly.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

// beat sends one heartbeat with a single short retry.
func (r *Reporter) beat(ctx context.Context) {
	report := ledger.HeartbeatReport{
		DeviceID:      r.deviceID,
		Online:        true,
		CameraHealthy: r.cameraHealthy(),
		QueueDepth:    r.queueDepth(),
		Version:       r.version,
	}

	err := r.client.Heartbeat(ctx, report)
	if err != nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
		err = r.client.Heartbeat(ctx, report)
	}

	if err != nil {
		log.Printf("heartbeat: send failed: %v", err)
	}
	if r.onResult != nil {
		r.onResult(err == nil)
	}
}
