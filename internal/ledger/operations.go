package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
)

// DetermineAction asks the ledger which attendance action applies for an
// employee at a location. Read-only; used to cross-check the local decision.
func (c *Client) DetermineAction(ctx context.Context, employeeID, locationID string) (*DetermineResult, error) {
	body := map[string]string{
		"employee_id": employeeID,
		"location_id": locationID,
	}
	result, err := doPostJSON[DetermineResult](ctx, c, "/api/v1/attendance/determine", body, nil)
	if err != nil {
		return nil, err
	}
	if !knownActions[result.Action] {
		return nil, fmt.Errorf("ledger returned unknown action %q", result.Action)
	}
	return result, nil
}

// ProcessAction records an attendance event. The idempotency key makes the
// call safely retryable: the ledger applies each key at most once.
func (c *Client) ProcessAction(ctx context.Context, req ProcessRequest, idempotencyKey string) (*ActionResult, error) {
	if idempotencyKey == "" {
		return nil, errors.New("idempotency key is required")
	}
	headers := map[string]string{idempotencyHeader: idempotencyKey}
	return doPostJSON[ActionResult](ctx, c, "/api/v1/attendance/process", req, headers)
}

// RegisterDevice performs one-time device registration. The returned
// device_id is the kiosk's stable identity for all later events.
func (c *Client) RegisterDevice(ctx context.Context, name, code, identifier, locationID string) (*RegisterResult, error) {
	body := map[string]string{
		"name":        name,
		"code":        code,
		"identifier":  identifier,
		"location_id": locationID,
	}
	result, err := doPostJSON[RegisterResult](ctx, c, "/api/v1/devices/register", body, nil)
	if err != nil {
		return nil, err
	}
	if result.Success && result.DeviceID == "" {
		return nil, errors.New("ledger reported success without a device_id")
	}
	return result, nil
}

// StartBreak records a self-service break start.
func (c *Client) StartBreak(ctx context.Context, employeeID, deviceID, idempotencyKey string) (*ActionResult, error) {
	body := map[string]string{
		"employee_id": employeeID,
		"device_id":   deviceID,
	}
	headers := map[string]string{idempotencyHeader: idempotencyKey}
	return doPostJSON[ActionResult](ctx, c, "/api/v1/attendance/break/start", body, headers)
}

// EndBreak records a break end.
func (c *Client) EndBreak(ctx context.Context, employeeID, deviceID, idempotencyKey string) (*ActionResult, error) {
	body := map[string]string{
		"employee_id": employeeID,
		"device_id":   deviceID,
	}
	headers := map[string]string{idempotencyHeader: idempotencyKey}
	return doPostJSON[ActionResult](ctx, c, "/api/v1/attendance/break/end", body, headers)
}

// RequestTemporaryExit records an approved, time-boxed departure request.
func (c *Client) RequestTemporaryExit(ctx context.Context, employeeID, deviceID, reason, idempotencyKey string) (*ActionResult, error) {
	body := map[string]string{
		"employee_id": employeeID,
		"device_id":   deviceID,
		"reason":      reason,
	}
	headers := map[string]string{idempotencyHeader: idempotencyKey}
	return doPostJSON[ActionResult](ctx, c, "/api/v1/attendance/temp-exit", body, headers)
}

// EmployeeStatus fetches the ledger's derived presence state for an
// employee. The kiosk never recomputes this locally.
func (c *Client) EmployeeStatus(ctx context.Context, employeeID string) (attendance.EmployeeStatus, error) {
	resp, err := doGetJSON[statusResponse](ctx, c, "/api/v1/employees/"+url.PathEscape(employeeID)+"/status")
	if err != nil {
		return attendance.EmployeeStatus{}, err
	}

	kind := attendance.StatusKind(resp.Status)
	if !knownStatuses[kind] {
		return attendance.EmployeeStatus{}, fmt.Errorf("ledger returned unknown status %q", resp.Status)
	}

	return attendance.EmployeeStatus{
		Kind:       kind,
		LocationID: resp.LocationID,
		TempExitID: resp.TempExitID,
	}, nil
}

// Heartbeat reports device liveness. Fire-and-forget from the caller's
// perspective; failures are logged, never fatal.
func (c *Client) Heartbeat(ctx context.Context, report HeartbeatReport) error {
	_, err := doPostJSON[ActionResult](ctx, c, "/api/v1/devices/heartbeat", report, nil)
	return err
}

// IsRetryable classifies a ledger error for the offline queue: network
// failures and server-side errors are retried, client errors are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}

	// Anything that is not an API response (DNS, refused connection,
	// timeout) is a transport fault and worth retrying.
	return true
}
