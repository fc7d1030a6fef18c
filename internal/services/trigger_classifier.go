package services

// ClassifyEvent maps a domain event onto the trigger types it satisfies.
// The mapping is a static table; unrecognized event kinds classify to
// nothing so a malformed event degrades to "no rules match".
func ClassifyEvent(evt AutomationEvent) []TriggerMatch {
	switch evt.Kind {
	case EventCreated:
		return []TriggerMatch{{Type: TriggerWorkOrderCreated}}
	case EventStatusChanged:
		if evt.After == "" || evt.Before == evt.After {
			return nil
		}
		return []TriggerMatch{
			{Type: TriggerStatusChangedTo, Value: evt.After},
			{Type: TriggerStatusTransition},
		}
	case EventPriorityChanged:
		if evt.After == "" || evt.Before == evt.After {
			return nil
		}
		return []TriggerMatch{{Type: TriggerPriorityChangedTo, Value: evt.After}}
	case EventAssignedToUser:
		return []TriggerMatch{{Type: TriggerAssignedToUser, Value: evt.After}}
	case EventAssignedToLocation:
		return []TriggerMatch{{Type: TriggerAssignedToLocation, Value: evt.After}}
	case EventAssignedToAsset:
		return []TriggerMatch{{Type: TriggerAssignedToAsset, Value: evt.After}}
	case EventSLATick:
		// The escalation family is only ever fed by the sweeper.
		return []TriggerMatch{{Type: TriggerSLAStatusEscalation}}
	default:
		return nil
	}
}
