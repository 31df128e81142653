package attestation

import (
	"errors"
	"fmt"
)

// Attestation error codes.
const (
	ErrCodeInvalidAddress    = "attest.invalid_address"    // Claimant or chip address is not 20 bytes
	ErrCodeInvalidCheckpoint = "attest.invalid_checkpoint" // Block hash is not 32 bytes, or block is missing
	ErrCodeInvalidPayload    = "attest.invalid_payload"    // Wire payload has the wrong length
	ErrCodeInvalidSignature  = "attest.invalid_signature"  // Signature is empty or does not recover
	ErrCodeStaleCheckpoint   = "attest.stale_checkpoint"   // Checkpoint older than the freshness bound
)

// Sentinels for errors.Is matching. An *Error matches a sentinel when the
// codes are equal.
var (
	ErrInvalidAddress    = &Error{Code: ErrCodeInvalidAddress}
	ErrInvalidCheckpoint = &Error{Code: ErrCodeInvalidCheckpoint}
	ErrInvalidPayload    = &Error{Code: ErrCodeInvalidPayload}
	ErrInvalidSignature  = &Error{Code: ErrCodeInvalidSignature}
	ErrStaleCheckpoint   = &Error{Code: ErrCodeStaleCheckpoint}
)

// Error is an attestation error with a structured code.
type Error struct {
	Code    string // One of the ErrCode* constants
	Message string // Human-readable error description
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the attestation error code from an error.
// Returns empty string if the error is not an *Error.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
