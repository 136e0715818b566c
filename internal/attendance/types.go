// Package attendance contains the pure decision logic that maps a recognized
// employee's current status to the attendance action the kiosk records.
package attendance

// ActionType identifies one kind of attendance event.
type ActionType string

const (
	ActionClockIn     ActionType = "clock_in"
	ActionClockOut    ActionType = "clock_out"
	ActionTransferIn  ActionType = "transfer_in"
	ActionTransferOut ActionType = "transfer_out"
	ActionTempExit    ActionType = "temp_exit"
	ActionTempReturn  ActionType = "temp_return"
	ActionBreakStart  ActionType = "break_start"
	ActionBreakEnd    ActionType = "break_end"
)

// IsInType reports whether the action puts the employee on site.
func (a ActionType) IsInType() bool {
	switch a {
	case ActionClockIn, ActionTransferIn, ActionTempReturn, ActionBreakEnd:
		return true
	}
	return false
}

// IsOutType reports whether the action takes the employee off duty.
func (a ActionType) IsOutType() bool {
	switch a {
	case ActionClockOut, ActionTransferOut, ActionTempExit, ActionBreakStart:
		return true
	}
	return false
}

// StatusKind is the employee's derived presence state. It is computed by the
// ledger from the event history; the kiosk only ever reads it.
type StatusKind string

const (
	StatusAbsent        StatusKind = "absent"
	StatusPresent       StatusKind = "present"
	StatusOnBreak       StatusKind = "on_break"
	StatusTemporaryExit StatusKind = "temporary_exit"
)

// EmployeeStatus is the ledger's view of one employee at decision time.
type EmployeeStatus struct {
	Kind       StatusKind
	LocationID string // location of the last "in" event, empty when absent
	TempExitID string // originating exit request, set when Kind is temporary_exit
}

// PlannedEvent is one attendance event a decision wants recorded.
type PlannedEvent struct {
	Type       ActionType
	LocationID string
	TempExitID string // carried only on temp_return
}

// Decision is the outcome of deciding an attendance action. A transfer
// produces two linked events (out at the old location, in at the new one)
// that must reach the ledger in order; every other decision produces one.
type Decision struct {
	Events  []PlannedEvent
	Message string // human-readable result for the kiosk display/announcer
}

// Primary returns the action type shown to the employee.
func (d Decision) Primary() ActionType {
	if len(d.Events) == 0 {
		return ""
	}
	// For transfers the arrival is the headline, not the departure.
	return d.Events[len(d.Events)-1].Type
}
