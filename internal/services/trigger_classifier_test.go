package services

import "testing"

func TestClassifyEvent_Created(t *testing.T) {
	matches := ClassifyEvent(AutomationEvent{WorkOrderID: 1, Kind: EventCreated})
	if len(matches) != 1 || matches[0].Type != TriggerWorkOrderCreated {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestClassifyEvent_StatusChanged(t *testing.T) {
	matches := ClassifyEvent(AutomationEvent{
		WorkOrderID: 1, Kind: EventStatusChanged, Before: "New", After: "Assigned",
	})
	if len(matches) != 2 {
		t.Fatalf("expected two trigger matches, got %+v", matches)
	}
	if matches[0].Type != TriggerStatusChangedTo || matches[0].Value != "Assigned" {
		t.Fatalf("status_changed_to should carry the target status, got %+v", matches[0])
	}
	if matches[1].Type != TriggerStatusTransition {
		t.Fatalf("expected generic transition trigger, got %+v", matches[1])
	}
}

func TestClassifyEvent_NoOpTransitions(t *testing.T) {
	// Same before/after or empty after classifies to nothing.
	if m := ClassifyEvent(AutomationEvent{Kind: EventStatusChanged, Before: "New", After: "New"}); m != nil {
		t.Fatalf("no-op status change should classify to nothing, got %+v", m)
	}
	if m := ClassifyEvent(AutomationEvent{Kind: EventStatusChanged, Before: "New"}); m != nil {
		t.Fatalf("empty target status should classify to nothing, got %+v", m)
	}
	if m := ClassifyEvent(AutomationEvent{Kind: EventPriorityChanged, Before: "High", After: "High"}); m != nil {
		t.Fatalf("no-op priority change should classify to nothing, got %+v", m)
	}
}

func TestClassifyEvent_Assignments(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{EventAssignedToUser, TriggerAssignedToUser},
		{EventAssignedToLocation, TriggerAssignedToLocation},
		{EventAssignedToAsset, TriggerAssignedToAsset},
	}
	for _, tt := range tests {
		matches := ClassifyEvent(AutomationEvent{WorkOrderID: 1, Kind: tt.kind, After: "5"})
		if len(matches) != 1 || matches[0].Type != tt.want || matches[0].Value != "5" {
			t.Fatalf("%s: unexpected matches %+v", tt.kind, matches)
		}
	}
}

func TestClassifyEvent_SLATickAndUnknown(t *testing.T) {
	matches := ClassifyEvent(AutomationEvent{WorkOrderID: 1, Kind: EventSLATick})
	if len(matches) != 1 || matches[0].Type != TriggerSLAStatusEscalation {
		t.Fatalf("sla_tick should classify to the escalation trigger, got %+v", matches)
	}
	if m := ClassifyEvent(AutomationEvent{WorkOrderID: 1, Kind: "reboot"}); m != nil {
		t.Fatalf("unknown event kind should classify to nothing, got %+v", m)
	}
}
