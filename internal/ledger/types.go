// Package ledger is the typed HTTP client for the remote attendance ledger.
// The ledger owns the event history and the derived employee status; the
// kiosk treats it as a black box behind these operation contracts.
package ledger

import (
	"fmt"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
)

// ActionResult is the response shape of the side-effecting action calls.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DetermineResult is the read-only decision hint from the ledger.
type DetermineResult struct {
	Action  attendance.ActionType `json:"action"`
	Message string                `json:"message"`
}

// RegisterResult is the response to a one-time device registration.
type RegisterResult struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"device_id"`
	Message  string `json:"message"`
}

// statusResponse is the wire shape of the employee status query.
type statusResponse struct {
	Status     string `json:"status"`
	LocationID string `json:"location_id"`
	TempExitID string `json:"temp_exit_id,omitempty"`
}

// knownActions is the closed set of action strings the ledger may return.
// Anything else is rejected rather than trusted.
var knownActions = map[attendance.ActionType]bool{
	attendance.ActionClockIn:     true,
	attendance.ActionClockOut:    true,
	attendance.ActionTransferIn:  true,
	attendance.ActionTransferOut: true,
	attendance.ActionTempExit:    true,
	attendance.ActionTempReturn:  true,
	attendance.ActionBreakStart:  true,
	attendance.ActionBreakEnd:    true,
}

// knownStatuses is the closed set of status strings the ledger may return.
var knownStatuses = map[attendance.StatusKind]bool{
	attendance.StatusAbsent:        true,
	attendance.StatusPresent:       true,
	attendance.StatusOnBreak:       true,
	attendance.StatusTemporaryExit: true,
}

// RejectedError is a logically refused action: the ledger answered 2xx but
// set success=false in the body. The payload will not become valid on a
// later attempt, so the error is never retryable.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ledger rejected action: %s", e.Message)
}

// APIError is a non-2xx response from the ledger.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger returned status %d: %s", e.StatusCode, e.Body)
}

// ProcessRequest is the payload of the side-effecting attendance call.
type ProcessRequest struct {
	EmployeeID string                `json:"employee_id"`
	LocationID string                `json:"location_id"`
	DeviceID   string                `json:"device_id"`
	ActionType attendance.ActionType `json:"action_type"`
	Confidence float64               `json:"confidence"`
	Notes      string                `json:"notes,omitempty"`
	TempExitID string                `json:"temp_exit_id,omitempty"`
}

// HeartbeatReport is the periodic device liveness payload.
type HeartbeatReport struct {
	DeviceID      string `json:"device_id"`
	Online        bool   `json:"online"`
	CameraHealthy bool   `json:"camera_healthy"`
	QueueDepth    int    `json:"queue_depth"`
	Version       string `json:"version,omitempty"`
}
