package attendance

// Decide maps an employee's current status and the kiosk's location to the
// attendance action(s) to record. Pure function; the break/exit branches
// take precedence over every clock/transfer rule so an employee already on
// break or on temporary exit can never be charged a spurious clock-out.
func Decide(status EmployeeStatus, currentLocation string) Decision {
	switch status.Kind {
	case StatusOnBreak:
		// Returning from break wins regardless of location.
		return Decision{
			Events:  []PlannedEvent{{Type: ActionBreakEnd, LocationID: currentLocation}},
			Message: "Welcome back from break",
		}

	case StatusTemporaryExit:
		// Returning from an approved exit, tied to the originating request.
		return Decision{
			Events: []PlannedEvent{{
				Type:       ActionTempReturn,
				LocationID: currentLocation,
				TempExitID: status.TempExitID,
			}},
			Message: "Welcome back",
		}

	case StatusPresent:
		if status.LocationID == currentLocation {
			return Decision{
				Events:  []PlannedEvent{{Type: ActionClockOut, LocationID: currentLocation}},
				Message: "Clocked out",
			}
		}
		// Recognized at a different location while clocked in: two linked
		// events, departure before arrival, never one ambiguous record.
		return Decision{
			Events: []PlannedEvent{
				{Type: ActionTransferOut, LocationID: status.LocationID},
				{Type: ActionTransferIn, LocationID: currentLocation},
			},
			Message: "Transferred",
		}

	default: // StatusAbsent or unknown
		return Decision{
			Events:  []PlannedEvent{{Type: ActionClockIn, LocationID: currentLocation}},
			Message: "Clocked in",
		}
	}
}
