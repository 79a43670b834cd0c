package store

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable category of an Error.
type Kind string

const (
	KindValidation                  Kind = "validation"
	KindNotFound                    Kind = "not_found"
	KindDuplicateRoomNumber         Kind = "duplicate_room_number"
	KindInvalidCapacity             Kind = "invalid_capacity"
	KindCapacityBelowOccupancy      Kind = "capacity_below_occupancy"
	KindRoomOccupied                Kind = "room_occupied"
	KindRoomFull                    Kind = "room_full"
	KindOccupantAlreadyAllocated    Kind = "occupant_already_allocated"
	KindDuplicateActiveRegistration Kind = "duplicate_active_registration"
	KindRegistrationFailed          Kind = "registration_failed"
	KindRegistrationAborted         Kind = "registration_aborted"
	KindStore                       Kind = "store"
)

// Error is returned by every store and coordinator operation. Two Errors
// match under errors.Is when their kinds are equal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation                  = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrNotFound                    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrDuplicateRoomNumber         = &Error{Kind: KindDuplicateRoomNumber, Message: "room number already exists"}
	ErrInvalidCapacity             = &Error{Kind: KindInvalidCapacity, Message: "capacity must be at least 1"}
	ErrCapacityBelowOccupancy      = &Error{Kind: KindCapacityBelowOccupancy, Message: "capacity below current occupancy"}
	ErrRoomOccupied                = &Error{Kind: KindRoomOccupied, Message: "room is occupied"}
	ErrRoomFull                    = &Error{Kind: KindRoomFull, Message: "room is full"}
	ErrOccupantAlreadyAllocated    = &Error{Kind: KindOccupantAlreadyAllocated, Message: "occupant already allocated"}
	ErrDuplicateActiveRegistration = &Error{Kind: KindDuplicateActiveRegistration, Message: "occupant already registered"}
	ErrRegistrationFailed          = &Error{Kind: KindRegistrationFailed, Message: "registration failed"}
	ErrRegistrationAborted         = &Error{Kind: KindRegistrationAborted, Message: "registration aborted"}
	ErrStore                       = &Error{Kind: KindStore, Message: "store unavailable"}
)

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err. Errors that did not originate here are
// treated as store failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// storeError marks a database failure as transient unless it already
// carries a kind.
func storeError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(KindStore, err, "failed to %s", op)
}

// RollbackError reports that a transaction failed and could not be rolled
// back, so partial writes may have been committed.
type RollbackError struct {
	Err         error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback failed: %v)", e.Err, e.RollbackErr)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Err, e.RollbackErr}
}
