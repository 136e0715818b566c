package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
)

type fakeActions struct {
	result   *ledger.ActionResult
	err      error
	lastCall string
	employee string
	device   string
	reason   string
	keys     []string
}

func (f *fakeActions) StartBreak(ctx context.Context, employeeID, deviceID, key string) (*ledger.ActionResult, error) {
	f.lastCall, f.employee, f.device = "start_break", employeeID, deviceID
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func (f *fakeActions) EndBreak(ctx context.Context, employeeID, deviceID, key string) (*ledger.ActionResult, error) {
	f.lastCall, f.employee, f.device = "end_break", employeeID, deviceID
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func (f *fakeActions) RequestTemporaryExit(ctx context.Context, employeeID, deviceID, reason, key string) (*ledger.ActionResult, error) {
	f.lastCall, f.employee, f.device, f.reason = "temp_exit", employeeID, deviceID, reason
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func postJSON(path, body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
}

func TestActionsHandler_StartBreak(t *testing.T) {
	client := &fakeActions{result: &ledger.ActionResult{Success: true, Message: "break started"}}
	h := NewActionsHandler(client, "dev-1")

	rec := httptest.NewRecorder()
	h.StartBreak(rec, postJSON("/api/v1/break/start", `{"employee_id":"emp-1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if client.lastCall != "start_break" || client.employee != "emp-1" || client.device != "dev-1" {
		t.Errorf("unexpected call: %s %s %s", client.lastCall, client.employee, client.device)
	}
	if len(client.keys) != 1 || client.keys[0] == "" {
		t.Error("expected a generated idempotency key")
	}
	if body := decodeBody(t, rec); body["success"] != true {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestActionsHandler_EndBreak(t *testing.T) {
	client := &fakeActions{result: &ledger.ActionResult{Success: true, Message: "break ended"}}
	h := NewActionsHandler(client, "dev-1")

	rec := httptest.NewRecorder()
	h.EndBreak(rec, postJSON("/api/v1/break/end", `{"employee_id":"emp-1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if client.lastCall != "end_break" {
		t.Errorf("expected end_break call, got %s", client.lastCall)
	}
}

func TestActionsHandler_TemporaryExitRequiresReason(t *testing.T) {
	client := &fakeActions{result: &ledger.ActionResult{Success: true}}
	h := NewActionsHandler(client, "dev-1")

	rec := httptest.NewRecorder()
	h.TemporaryExit(rec, postJSON("/api/v1/temp-exit", `{"employee_id":"emp-1"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if client.lastCall != "" {
		t.Error("expected no ledger call without a reason")
	}

	rec = httptest.NewRecorder()
	h.TemporaryExit(rec, postJSON("/api/v1/temp-exit", `{"employee_id":"emp-1","reason":"doctor visit"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if client.reason != "doctor visit" {
		t.Errorf("expected reason forwarded, got %q", client.reason)
	}
}

func TestActionsHandler_MissingEmployeeRejected(t *testing.T) {
	client := &fakeActions{result: &ledger.ActionResult{Success: true}}
	h := NewActionsHandler(client, "dev-1")

	rec := httptest.NewRecorder()
	h.StartBreak(rec, postJSON("/api/v1/break/start", `{}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if client.lastCall != "" {
		t.Error("expected no ledger call without an employee_id")
	}
}

func TestActionsHandler_LedgerUnreachable(t *testing.T) {
	client := &fakeActions{err: errors.New("connection refused")}
	h := NewActionsHandler(client, "dev-1")

	rec := httptest.NewRecorder()
	h.StartBreak(rec, postJSON("/api/v1/break/start", `{"employee_id":"emp-1"}`))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestActionsHandler_LogicalRefusalIsConflict(t *testing.T) {
	client := &fakeActions{result: &ledger.ActionResult{Success: false, Message: "not on break"}}
	h := NewActionsHandler(client, "dev-1")

	rec := httptest.NewRecorder()
	h.EndBreak(rec, postJSON("/api/v1/break/end", `{"employee_id":"emp-1"}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "not on break" {
		t.Errorf("unexpected body: %v", body)
	}
}
