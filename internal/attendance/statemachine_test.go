package attendance

import "testing"

func TestDecide_NoPriorEventClocksIn(t *testing.T) {
	decision := Decide(EmployeeStatus{Kind: StatusAbsent}, "loc-a")

	if len(decision.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(decision.Events))
	}
	if decision.Events[0].Type != ActionClockIn {
		t.Errorf("expected clock_in, got %s", decision.Events[0].Type)
	}
	if decision.Events[0].LocationID != "loc-a" {
		t.Errorf("expected loc-a, got %s", decision.Events[0].LocationID)
	}
}

func TestDecide_PresentSameLocationClocksOut(t *testing.T) {
	status := EmployeeStatus{Kind: StatusPresent, LocationID: "loc-a"}

	decision := Decide(status, "loc-a")

	if len(decision.Events) != 1 || decision.Events[0].Type != ActionClockOut {
		t.Fatalf("expected single clock_out, got %+v", decision.Events)
	}
}

func TestDecide_PresentDifferentLocationTransfers(t *testing.T) {
	status := EmployeeStatus{Kind: StatusPresent, LocationID: "loc-a"}

	decision := Decide(status, "loc-b")

	if len(decision.Events) != 2 {
		t.Fatalf("expected 2 linked events, got %d", len(decision.Events))
	}
	if decision.Events[0].Type != ActionTransferOut || decision.Events[0].LocationID != "loc-a" {
		t.Errorf("expected transfer_out@loc-a first, got %s@%s",
			decision.Events[0].Type, decision.Events[0].LocationID)
	}
	if decision.Events[1].Type != ActionTransferIn || decision.Events[1].LocationID != "loc-b" {
		t.Errorf("expected transfer_in@loc-b second, got %s@%s",
			decision.Events[1].Type, decision.Events[1].LocationID)
	}
	if decision.Primary() != ActionTransferIn {
		t.Errorf("expected primary action transfer_in, got %s", decision.Primary())
	}
}

func TestDecide_BreakPrecedence(t *testing.T) {
	// An employee on break always yields break_end, regardless of where
	// they are recognized.
	for _, loc := range []string{"loc-a", "loc-b", "loc-c"} {
		status := EmployeeStatus{Kind: StatusOnBreak, LocationID: "loc-a"}

		decision := Decide(status, loc)

		if len(decision.Events) != 1 || decision.Events[0].Type != ActionBreakEnd {
			t.Fatalf("location %s: expected break_end, got %+v", loc, decision.Events)
		}
	}
}

func TestDecide_TemporaryExitPrecedence(t *testing.T) {
	status := EmployeeStatus{
		Kind:       StatusTemporaryExit,
		LocationID: "loc-a",
		TempExitID: "exit-42",
	}

	decision := Decide(status, "loc-b")

	if len(decision.Events) != 1 || decision.Events[0].Type != ActionTempReturn {
		t.Fatalf("expected temp_return, got %+v", decision.Events)
	}
	if decision.Events[0].TempExitID != "exit-42" {
		t.Errorf("expected temp_return tied to exit-42, got %q", decision.Events[0].TempExitID)
	}
}

func TestActionType_Classification(t *testing.T) {
	inTypes := []ActionType{ActionClockIn, ActionTransferIn, ActionTempReturn, ActionBreakEnd}
	outTypes := []ActionType{ActionClockOut, ActionTransferOut, ActionTempExit, ActionBreakStart}

	for _, a := range inTypes {
		if !a.IsInType() || a.IsOutType() {
			t.Errorf("%s should classify as an in-type", a)
		}
	}
	for _, a := range outTypes {
		if !a.IsOutType() || a.IsInType() {
			t.Errorf("%s should classify as an out-type", a)
		}
	}
}
