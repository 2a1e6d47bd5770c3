package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching against the typed errors below.
var (
	ErrInvalidReference   = errors.New("invalid reference")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrEditNotAllowed     = errors.New("edit not allowed")
	ErrNotPersisted       = errors.New("committed but not persisted")
)

// InvalidReferenceError reports an entity ID that does not resolve.
type InvalidReferenceError struct {
	Entity EntityType
	ID     string
}

func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is matches ErrInvalidReference.
func (e InvalidReferenceError) Is(target error) bool { return target == ErrInvalidReference }

// InvariantViolationError reports an operation that would break a domain invariant.
type InvariantViolationError struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e InvariantViolationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Entity, e.ID, e.Reason)
}

// Is matches ErrInvariantViolation.
func (e InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

// IllegalTransitionError reports a lifecycle transition that is not permitted.
type IllegalTransitionError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s %q cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Is matches ErrIllegalTransition.
func (e IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// PersistError reports a transaction that committed in memory but whose
// write-through to the durable backend failed. The committed state stands.
type PersistError struct {
	Backend string
	Err     error
}

func (e PersistError) Error() string {
	return fmt.Sprintf("persist %s snapshot: %v", e.Backend, e.Err)
}

func (e PersistError) Unwrap() error { return e.Err }

// Is matches ErrNotPersisted.
func (e PersistError) Is(target error) bool { return target == ErrNotPersisted }
