package enums

import "fmt"

// IntentStatus tracks the lifecycle of a payment intent.
type IntentStatus string

const (
	IntentStatusInitiated       IntentStatus = "initiated"
	IntentStatusRequiresCapture IntentStatus = "requires_capture"
	IntentStatusCaptured        IntentStatus = "captured"
	IntentStatusCancelled       IntentStatus = "cancelled"
	IntentStatusFailed          IntentStatus = "failed"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusInitiated,
	IntentStatusRequiresCapture,
	IntentStatusCaptured,
	IntentStatusCancelled,
	IntentStatusFailed,
}

// intentTransitions encodes the legal state machine edges. Captured,
// cancelled and failed are terminal for the intent.
var intentTransitions = map[IntentStatus][]IntentStatus{
	IntentStatusInitiated:       {IntentStatusRequiresCapture, IntentStatusCaptured, IntentStatusCancelled, IntentStatusFailed},
	IntentStatusRequiresCapture: {IntentStatusCaptured, IntentStatusCancelled},
	IntentStatusCaptured:        {},
	IntentStatusCancelled:       {},
	IntentStatusFailed:          {},
}

// String implements fmt.Stringer.
func (s IntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntentStatus.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the intent can never transition again.
func (s IntentStatus) IsTerminal() bool {
	return len(intentTransitions[s]) == 0 && s.IsValid()
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	for _, candidate := range intentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseIntentStatus converts raw input into an IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
