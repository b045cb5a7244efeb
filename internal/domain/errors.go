package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPolicyViolation   = errors.New("policy violation")
)

// InvalidInputError reports a value outside its defined domain.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// InvalidTransitionError reports an action attempted from a state that does not allow it.
type InvalidTransitionError struct {
	From   OverrideStatus
	Action DecisionAction
	Reason string
}

func (e InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid override transition: %s from %s", e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// PolicyViolationError reports a self-approval or an actor below the required tier.
type PolicyViolationError struct {
	Rule   string
	Reason string
}

func (e PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Reason)
}

func (e PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }

const (
	RuleSelfApproval       = "self_approval"
	RuleInsufficientRole   = "insufficient_role"
	RuleRequesterOnly      = "requester_only"
	RuleOriginRoleMismatch = "origin_role_mismatch"
)

// Invalid builds an InvalidInputError.
func Invalid(field, format string, args ...any) error {
	return InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
