package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
)

// SelfServiceClient is the subset of ledger calls behind the self-service
// break and temporary exit endpoints.
type SelfServiceClient interface {
	StartBreak(ctx context.Context, employeeID, deviceID, idempotencyKey string) (*ledger.ActionResult, error)
	EndBreak(ctx context.Context, employeeID, deviceID, idempotencyKey string) (*ledger.ActionResult, error)
	RequestTemporaryExit(ctx context.Context, employeeID, deviceID, reason, idempotencyKey string) (*ledger.ActionResult, error)
}

// ActionsHandler serves the self-service actions an employee triggers from
// the kiosk screen instead of through face recognition. These go straight to
// the ledger; without connectivity they report unavailable rather than queue,
// because a break the employee believes started must actually have started.
type ActionsHandler struct {
	client   SelfServiceClient
	deviceID string
}

// NewActionsHandler creates a self-service actions handler.
func NewActionsHandler(client SelfServiceClient, deviceID string) *ActionsHandler {
	return &ActionsHandler{client: client, deviceID: deviceID}
}

type selfServiceRequest struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
}

// StartBreak handles POST /api/v1/break/start.
func (h *ActionsHandler) StartBreak(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.client.StartBreak(r.Context(), req.EmployeeID, h.deviceID, uuid.NewString())
	h.respond(w, result, err)
}

// EndBreak handles POST /api/v1/break/end.
func (h *ActionsHandler) EndBreak(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.client.EndBreak(r.Context(), req.EmployeeID, h.deviceID, uuid.NewString())
	h.respond(w, result, err)
}

// TemporaryExit handles POST /api/v1/temp-exit.
func (h *ActionsHandler) TemporaryExit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}
	result, err := h.client.RequestTemporaryExit(r.Context(), req.EmployeeID, h.deviceID, req.Reason, uuid.NewString())
	h.respond(w, result, err)
}

func (h *ActionsHandler) decode(w http.ResponseWriter, r *http.Request) (selfServiceRequest, bool) {
	var req selfServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.EmployeeID == "" {
		respondError(w, http.StatusBadRequest, "employee_id is required")
		return req, false
	}
	return req, true
}

func (h *ActionsHandler) respond(w http.ResponseWriter, result *ledger.ActionResult, err error) {
	if err != nil {
		if ledger.IsRetryable(err) {
			respondError(w, http.StatusServiceUnavailable, "ledger unreachable, try again")
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	respondJSON(w, status, map[string]any{
		"success": result.Success,
		"message": result.Message,
	})
}
