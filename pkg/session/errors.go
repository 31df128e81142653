package session

import (
	"errors"
	"fmt"
)

// Reason classifies why a session failed.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnsupported     Reason = "unsupported_environment"
	ReasonDeviceSelection Reason = "device_selection_failed"
	ReasonTransport       Reason = "transport_error"
	ReasonTimeout         Reason = "timeout"
	ReasonDisconnected    Reason = "disconnected"
	ReasonCancelled       Reason = "cancelled"
	ReasonBusy            Reason = "busy"
	ReasonInvalidResponse Reason = "invalid_response"
)

// Sentinels for errors.Is matching. An *Error matches a sentinel with the
// same Reason.
var (
	ErrUnsupported     = &Error{Reason: ReasonUnsupported}
	ErrDeviceSelection = &Error{Reason: ReasonDeviceSelection}
	ErrTransport       = &Error{Reason: ReasonTransport}
	ErrTimeout         = &Error{Reason: ReasonTimeout}
	ErrDisconnected    = &Error{Reason: ReasonDisconnected}
	ErrCancelled       = &Error{Reason: ReasonCancelled}
	ErrBusy            = &Error{Reason: ReasonBusy}
	ErrInvalidResponse = &Error{Reason: ReasonInvalidResponse}
)

// ErrSessionUsed is returned when Run is called on a session that already ran.
var ErrSessionUsed = errors.New("session: already used; start a new session for a new challenge")

// Error is a terminal session failure.
type Error struct {
	Reason Reason
	State  State // state the session was in when it failed
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("session %s", e.Reason)
	if e.State != "" {
		msg += " in " + string(e.State)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// ReasonOf extracts the failure reason from err, or ReasonNone.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}
