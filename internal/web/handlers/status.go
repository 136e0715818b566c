// Package handlers implements the operator-facing status API of the kiosk.
// It is a read-mostly surface bound to loopback; the only mutation it offers
// is forcing a queue drain or a retry of failed deliveries.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
)

// RuntimeSource exposes the kiosk runtime to the status API.
type RuntimeSource interface {
	Snapshot() kiosk.Status
	Events() *kiosk.EventBroadcaster
}

// DeviceInfo identifies this kiosk installation.
type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	LocationID string `json:"location_id"`
	Version    string `json:"version"`
}

// StatusHandler serves runtime state and device identity.
type StatusHandler struct {
	runtime RuntimeSource
	queue   QueueSource
	device  DeviceInfo
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(runtime RuntimeSource, queue QueueSource, device DeviceInfo) *StatusHandler {
	return &StatusHandler{runtime: runtime, queue: queue, device: device}
}

// Get returns the current runtime snapshot plus delivery state.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.runtime.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"runtime":      snap,
		"queue_depth":  h.queue.Depth(),
		"online":       h.queue.Online(),
		"failed_items": len(h.queue.FailedItems()),
	})
}

// Device returns the device identity.
func (h *StatusHandler) Device(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.device)
}

// Events streams runtime transitions as server-sent events until the client
// disconnects.
func (h *StatusHandler) Events(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := h.runtime.Events()
	ch := events.AddListener()
	defer events.RemoveListener(ch)

	sendSSEEvent(w, flusher, "status", h.runtime.Snapshot())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}
