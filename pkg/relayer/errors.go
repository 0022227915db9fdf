package relayer

import (
	"fmt"

	"github.com/ferrylabs/ferry/pkg/model"
)

// ValidationError is a malformed submission. It is reported to the caller and
// never retried.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed, %v", e.Reason)
}

// StateConflictError is a transition the state machine forbids, such as a
// secret submitted on a terminal order. Never retried.
type StateConflictError struct {
	Status model.OrderStatus
	Reason string
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("illegal transition from %v, %v", e.Status, e.Reason)
}

// AuthorizationError is returned when a resolver asks for an order already
// assigned to a different resolver.
type AuthorizationError struct {
	OrderID  string
	Assigned string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("order %v is assigned to resolver %v", e.OrderID, e.Assigned)
}
