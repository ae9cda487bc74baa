package behave

import (
	"errors"
	"fmt"
)

// RejectionCode classifies why a command was rejected.
type RejectionCode int

const (
	// RejectionPrecondition indicates a matched rule's action signaled a
	// domain-precondition failure.
	RejectionPrecondition RejectionCode = iota

	// RejectionUnmatchedCreation indicates no creation rule matched the command.
	RejectionUnmatchedCreation

	// RejectionUnmatchedUpdate indicates no update rule matched the command.
	RejectionUnmatchedUpdate

	// RejectionInvalidOutcome indicates a matched action produced a malformed
	// event sequence: no events on success, or more than one event from a
	// creation rule.
	RejectionInvalidOutcome
)

// String returns the code name.
func (c RejectionCode) String() string {
	switch c {
	case RejectionPrecondition:
		return "precondition"
	case RejectionUnmatchedCreation:
		return "unmatched-creation"
	case RejectionUnmatchedUpdate:
		return "unmatched-update"
	case RejectionInvalidOutcome:
		return "invalid-outcome"
	default:
		return fmt.Sprintf("rejection(%d)", int(c))
	}
}

// Rejection is the expected, recoverable outcome of command validation.
// It carries the offending command's name, the aggregate id when known, and
// a human-readable reason. Rejections are ordinary error values: they match
// ErrCommandRejected with errors.Is and expose any underlying cause through
// errors.Unwrap.
type Rejection struct {
	// Code classifies the rejection.
	Code RejectionCode

	// Command names the rejected command type.
	Command string

	// AggregateID identifies the aggregate, when the rejection occurred on
	// the update side. Empty for creation rejections.
	AggregateID string

	// Reason describes the rejection for humans.
	Reason string

	cause error
}

// Error returns the error message.
func (r *Rejection) Error() string {
	switch {
	case r.AggregateID != "" && r.Command != "":
		return fmt.Sprintf("behave: command %q rejected for aggregate %q: %s", r.Command, r.AggregateID, r.Reason)
	case r.Command != "":
		return fmt.Sprintf("behave: command %q rejected: %s", r.Command, r.Reason)
	default:
		return fmt.Sprintf("behave: command rejected: %s", r.Reason)
	}
}

// Is reports whether this error matches the target error.
func (r *Rejection) Is(target error) bool {
	return target == ErrCommandRejected
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (r *Rejection) Unwrap() error {
	return r.cause
}

// Cause returns the underlying cause, if any.
func (r *Rejection) Cause() error {
	return r.cause
}

// NewRejection creates a Rejection with the given code and reason.
func NewRejection(code RejectionCode, reason string) *Rejection {
	return &Rejection{Code: code, Reason: reason}
}

// NewCreationRejection creates the rejection for a command no creation rule matched.
func NewCreationRejection(cmd any) *Rejection {
	return &Rejection{
		Code:    RejectionUnmatchedCreation,
		Command: CommandName(cmd),
		Reason:  "invalid command for creation",
	}
}

// NewUpdateRejection creates the rejection for a command no update rule matched.
func NewUpdateRejection(cmd any, aggregateID string) *Rejection {
	return &Rejection{
		Code:        RejectionUnmatchedUpdate,
		Command:     CommandName(cmd),
		AggregateID: aggregateID,
		Reason:      "invalid command for update",
	}
}

// NewPreconditionRejection creates a rejection carrying a failed action's error.
// If cause is already a *Rejection it is returned unchanged.
func NewPreconditionRejection(cmd any, cause error) *Rejection {
	var rej *Rejection
	if errors.As(cause, &rej) {
		return rej
	}
	return &Rejection{
		Code:    RejectionPrecondition,
		Command: CommandName(cmd),
		Reason:  cause.Error(),
		cause:   cause,
	}
}

// IsRejection reports whether err is (or wraps) a command rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCommandRejected)
}

// AsRejection extracts the *Rejection from err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
