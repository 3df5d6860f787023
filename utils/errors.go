package utils

import "fmt"

// Error codes surfaced to API clients on rejected operations.
const (
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeCampaignAlreadyStarted = "CAMPAIGN_ALREADY_STARTED"
)

// StateError rejects an illegal campaign lifecycle operation. It is
// returned before any side effect takes place.
type StateError struct {
	Code string
	From string
	To   string
}

func (e *StateError) Error() string {
	if e.From != "" || e.To != "" {
		return fmt.Sprintf("%s: cannot transition campaign from %q to %q", e.Code, e.From, e.To)
	}
	return e.Code
}

// NewTransitionError reports an illegal status transition attempt.
func NewTransitionError(from, to string) *StateError {
	return &StateError{Code: CodeInvalidStateTransition, From: from, To: to}
}

// ErrCampaignAlreadyStarted rejects operations that are only legal
// before a campaign first enters running, such as re-materializing its
// contact queue or editing its definition.
var ErrCampaignAlreadyStarted = &StateError{Code: CodeCampaignAlreadyStarted}

// ValidationError rejects a bad campaign definition at creation time.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}
