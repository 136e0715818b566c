package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, "test-token", 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, server
}

func TestDetermineAction(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/attendance/determine" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"action":  "clock_in",
			"message": "Clock in at Main Office",
		})
	})

	result, err := client.DetermineAction(context.Background(), "emp-1", "loc-1")
	if err != nil {
		t.Fatalf("DetermineAction failed: %v", err)
	}
	if result.Action != attendance.ActionClockIn {
		t.Errorf("expected clock_in, got %s", result.Action)
	}
}

func TestDetermineAction_UnknownActionRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"action": "teleport_in"})
	})

	if _, err := client.DetermineAction(context.Background(), "emp-1", "loc-1"); err == nil {
		t.Fatal("expected error for unknown action string")
	}
}

func TestProcessAction_SendsIdempotencyKey(t *testing.T) {
	var gotKey string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "recorded"})
	})

	req := ProcessRequest{
		EmployeeID: "emp-1",
		LocationID: "loc-1",
		DeviceID:   "dev-1",
		ActionType: attendance.ActionClockIn,
		Confidence: 0.91,
	}
	result, err := client.ProcessAction(context.Background(), req, "key-123")
	if err != nil {
		t.Fatalf("ProcessAction failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if gotKey != "key-123" {
		t.Errorf("expected idempotency key key-123, got %q", gotKey)
	}
}

func TestProcessAction_RequiresKey(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := client.ProcessAction(context.Background(), ProcessRequest{}, ""); err == nil {
		t.Fatal("expected error for missing idempotency key")
	}
}

func TestRegisterDevice(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["identifier"] == "" {
			t.Error("expected identifier in registration body")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"device_id": "dev-42",
			"message":   "registered",
		})
	})

	result, err := client.RegisterDevice(context.Background(), "Front door", "KIOSK-1", "id-abc", "loc-1")
	if err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if result.DeviceID != "dev-42" {
		t.Errorf("expected dev-42, got %s", result.DeviceID)
	}
}

func TestRegisterDevice_SuccessWithoutIDRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if _, err := client.RegisterDevice(context.Background(), "n", "c", "i", "l"); err == nil {
		t.Fatal("expected error when success carries no device_id")
	}
}

func TestStartBreak(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "break started"})
	})

	result, err := client.StartBreak(context.Background(), "emp-1", "dev-1", "key-b1")
	if err != nil {
		t.Fatalf("StartBreak failed: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if gotPath != "/api/v1/attendance/break/start" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotKey != "key-b1" {
		t.Errorf("expected idempotency key key-b1, got %q", gotKey)
	}
	if gotBody["employee_id"] != "emp-1" || gotBody["device_id"] != "dev-1" {
		t.Errorf("unexpected body %v", gotBody)
	}
}

func TestEndBreak(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "break ended"})
	})

	result, err := client.EndBreak(context.Background(), "emp-1", "dev-1", "key-b2")
	if err != nil {
		t.Fatalf("EndBreak failed: %v", err)
	}
	if gotPath != "/api/v1/attendance/break/end" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if result.Message != "break ended" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestRequestTemporaryExit(t *testing.T) {
	var gotBody map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/attendance/temp-exit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "no exits left today"})
	})

	result, err := client.RequestTemporaryExit(context.Background(), "emp-1", "dev-1", "doctor visit", "key-t1")
	if err != nil {
		t.Fatalf("RequestTemporaryExit failed: %v", err)
	}
	if gotBody["reason"] != "doctor visit" {
		t.Errorf("expected reason in body, got %v", gotBody)
	}
	if result.Success {
		t.Error("expected logical refusal to surface as success=false")
	}
}

func TestEmployeeStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/employees/emp-1/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":       "temporary_exit",
			"location_id":  "loc-1",
			"temp_exit_id": "exit-9",
		})
	})

	status, err := client.EmployeeStatus(context.Background(), "emp-1")
	if err != nil {
		t.Fatalf("EmployeeStatus failed: %v", err)
	}
	if status.Kind != attendance.StatusTemporaryExit {
		t.Errorf("expected temporary_exit, got %s", status.Kind)
	}
	if status.TempExitID != "exit-9" {
		t.Errorf("expected exit-9, got %s", status.TempExitID)
	}
}

func TestEmployeeStatus_UnknownStatusRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "vanished"})
	})

	if _, err := client.EmployeeStatus(context.Background(), "emp-1"); err == nil {
		t.Fatal("expected error for unknown status string")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &APIError{StatusCode: 500}, true},
		{"bad gateway", &APIError{StatusCode: 502}, true},
		{"too many requests", &APIError{StatusCode: 429}, true},
		{"request timeout", &APIError{StatusCode: 408}, true},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"conflict", &APIError{StatusCode: 409}, false},
		{"logical rejection", &RejectedError{Message: "archived"}, false},
		{"transport failure", errors.New("connection refused"), true},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestAPIErrorStatusPropagated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "employee not found", http.StatusNotFound)
	})

	_, err := client.DetermineAction(context.Background(), "ghost", "loc-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.StatusCode)
	}
}
