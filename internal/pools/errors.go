package pools

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine for a rejected transition
// matches exactly one of these with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidApplication = errors.New("invalid application")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("invalid state")
	ErrPaused             = errors.New("paused")
)

// Specific variants, each wrapping its kind.
var (
	ErrPoolNotFound             = kindError(ErrNotFound, "pool not found")
	ErrApplicationNotFound      = kindError(ErrNotFound, "application not found")
	ErrNotPoolOwner             = kindError(ErrUnauthorized, "caller is not the pool owner")
	ErrMissingRole              = kindError(ErrUnauthorized, "caller lacks required role")
	ErrPoolNotActive            = kindError(ErrInvalidState, "pool is not active")
	ErrAlreadySelected          = kindError(ErrInvalidState, "candidate already selected")
	ErrNoCandidateSelected      = kindError(ErrInvalidState, "no candidate selected")
	ErrInvalidApplicationStatus = kindError(ErrInvalidState, "application is not pending")
	ErrDeadlineNotReached       = kindError(ErrInvalidState, "pool deadline not reached")
	ErrReentrantCall            = kindError(ErrInvalidState, "re-entrant engine call")
	ErrAlreadyPaused            = kindError(ErrInvalidState, "engine already paused")
	ErrNotPaused                = kindError(ErrInvalidState, "engine not paused")
	ErrRolesFixed               = kindError(ErrInvalidState, "role is granted by configuration")
	ErrDuplicateApplication     = kindError(ErrInvalidApplication, "candidate already applied")
)

type variantError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &variantError{kind: kind, msg: msg}
}

func (e *variantError) Error() string { return e.msg }

func (e *variantError) Unwrap() error { return e.kind }

// ValidationError describes the exact reason input was rejected.
type ValidationError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalidInput(field, reason string) error {
	return &ValidationError{Kind: ErrInvalidInput, Field: field, Reason: reason}
}

func invalidApplication(field, reason string) error {
	return &ValidationError{Kind: ErrInvalidApplication, Field: field, Reason: reason}
}

// KindOf returns the error kind for err, or nil when err is not a domain error.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrInvalidApplication, ErrNotFound, ErrUnauthorized, ErrInvalidState, ErrPaused} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
