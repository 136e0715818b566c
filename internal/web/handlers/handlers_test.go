package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
	"github.com/kozaktomas/attendance-kiosk/internal/queue"
)

type fakeRuntime struct {
	status kiosk.Status
	events *kiosk.EventBroadcaster
}

func (f *fakeRuntime) Snapshot() kiosk.Status          { return f.status }
func (f *fakeRuntime) Events() *kiosk.EventBroadcaster { return f.events }

type fakeQueue struct {
	depth     int
	online    bool
	items     []queue.Item
	failed    []queue.Item
	delivered int
	requeued  int
	drains    int
}

func (f *fakeQueue) Depth() int                { return f.depth }
func (f *fakeQueue) Online() bool              { return f.online }
func (f *fakeQueue) Items() []queue.Item       { return f.items }
func (f *fakeQueue) FailedItems() []queue.Item { return f.failed }
func (f *fakeQueue) RetryFailed() int          { return f.requeued }
func (f *fakeQueue) Drain(ctx context.Context) int {
	f.drains++
	return f.delivered
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestStatusHandler_Get(t *testing.T) {
	runtime := &fakeRuntime{
		status: kiosk.Status{State: kiosk.StateStandby, CameraHealthy: true},
		events: &kiosk.EventBroadcaster{},
	}
	q := &fakeQueue{depth: 3, online: false, failed: []queue.Item{{Seq: 1, Failed: true}}}
	h := NewStatusHandler(runtime, q, DeviceInfo{DeviceID: "device-1"})

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["queue_depth"] != float64(3) {
		t.Errorf("expected queue_depth 3, got %v", body["queue_depth"])
	}
	if body["online"] != false {
		t.Errorf("expected online false, got %v", body["online"])
	}
	if body["failed_items"] != float64(1) {
		t.Errorf("expected 1 failed item, got %v", body["failed_items"])
	}
	rt, ok := body["runtime"].(map[string]any)
	if !ok || rt["state"] != "standby" {
		t.Errorf("unexpected runtime snapshot: %v", body["runtime"])
	}
}

func TestStatusHandler_Device(t *testing.T) {
	h := NewStatusHandler(
		&fakeRuntime{events: &kiosk.EventBroadcaster{}},
		&fakeQueue{},
		DeviceInfo{DeviceID: "device-1", LocationID: "loc-entrance", Version: "1.2.3"},
	)

	rec := httptest.NewRecorder()
	h.Device(rec, httptest.NewRequest(http.MethodGet, "/api/v1/device", nil))

	body := decodeBody(t, rec)
	if body["device_id"] != "device-1" || body["location_id"] != "loc-entrance" || body["version"] != "1.2.3" {
		t.Errorf("unexpected device info: %v", body)
	}
}

func TestQueueHandler_List(t *testing.T) {
	q := &fakeQueue{
		depth:  1,
		online: true,
		items: []queue.Item{{
			Seq:            1,
			IdempotencyKey: "key-1",
			EmployeeID:     "emp-1",
			Request: ledger.ProcessRequest{
				ActionType: attendance.ActionClockIn,
				LocationID: "loc-entrance",
			},
			EnqueuedAt:   time.Now(),
			AttemptCount: 2,
			LastError:    "connection refused",
		}},
	}
	h := NewQueueHandler(q)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))

	body := decodeBody(t, rec)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", body["items"])
	}
	item := items[0].(map[string]any)
	if item["action_type"] != "clock_in" {
		t.Errorf("expected clock_in, got %v", item["action_type"])
	}
	if item["attempt_count"] != float64(2) {
		t.Errorf("expected 2 attempts, got %v", item["attempt_count"])
	}
	if item["last_error"] != "connection refused" {
		t.Errorf("expected last error, got %v", item["last_error"])
	}
	failed, ok := body["failed"].([]any)
	if !ok || len(failed) != 0 {
		t.Errorf("expected empty failed list, got %v", body["failed"])
	}
}

func TestQueueHandler_Drain(t *testing.T) {
	q := &fakeQueue{delivered: 4}
	h := NewQueueHandler(q)

	rec := httptest.NewRecorder()
	h.Drain(rec, httptest.NewRequest(http.MethodPost, "/api/v1/queue/drain", nil))

	if q.drains != 1 {
		t.Fatalf("expected 1 drain call, got %d", q.drains)
	}
	if body := decodeBody(t, rec); body["delivered"] != float64(4) {
		t.Errorf("expected 4 delivered, got %v", body["delivered"])
	}
}

func TestQueueHandler_RetryFailed(t *testing.T) {
	q := &fakeQueue{requeued: 2}
	h := NewQueueHandler(q)

	rec := httptest.NewRecorder()
	h.RetryFailed(rec, httptest.NewRequest(http.MethodPost, "/api/v1/queue/retry", nil))

	if body := decodeBody(t, rec); body["requeued"] != float64(2) {
		t.Errorf("expected 2 requeued, got %v", body["requeued"])
	}
}

func TestStatusHandler_EventsStreamsInitialSnapshot(t *testing.T) {
	runtime := &fakeRuntime{
		status: kiosk.Status{State: kiosk.StateStandby},
		events: &kiosk.EventBroadcaster{},
	}
	h := NewStatusHandler(runtime, &fakeQueue{}, DeviceInfo{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.Events(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", got)
	}
	if body := rec.Body.String(); body == "" || body[:7] != "event: " {
		t.Errorf("expected an initial SSE event, got %q", body)
	}
}
