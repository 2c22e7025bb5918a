package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed is wrapped by every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPersistence is wrapped by every *PersistenceError.
	ErrPersistence = errors.New("persistence error")

	// ErrIllegalTransition is returned when a command is not valid in the
	// coordinator's current state.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrUnknownSession is returned for a session index the program lacks.
	ErrUnknownSession = errors.New("unknown session")

	// ErrUnknownField is returned when editing a key the session does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrNotPrivileged is returned when a counselor/admin operation is
	// attempted by a participant.
	ErrNotPrivileged = errors.New("privileged role required")

	// ErrConfirmRequired is returned when a destructive operation was not
	// explicitly confirmed.
	ErrConfirmRequired = errors.New("confirmation required")

	// ErrResponderMismatch is returned when a single response would replace
	// a response written under a different responder name.
	ErrResponderMismatch = errors.New("already answered by another responder")

	// ErrEmptyResponse is returned for blank response text.
	ErrEmptyResponse = errors.New("response text is empty")

	// ErrBadFilter is returned for an invalid target filter.
	ErrBadFilter = errors.New("invalid target filter")

	// ErrViewClosed is returned by commands on a closed coordinator.
	ErrViewClosed = errors.New("view closed")

	// ErrMirrorFailed accompanies a stored response whose copy into
	// Progress could not be written. The submission itself is saved.
	ErrMirrorFailed = errors.New("response saved but progress not updated")
)

// ValidationError names the first field blocking a submit. It is produced
// before any backend call.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q is incomplete", e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// PersistenceError wraps a backend read or write failure with the
// operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both ErrPersistence and the underlying cause, so
// errors.Is works for either.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func illegal(cmd string, from StateKind) error {
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, cmd, from)
}
