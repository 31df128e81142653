package clierror

import (
	"encoding/json"
	"fmt"
	"io"
)

// Exit codes, one per failure class.
const (
	ExitSuccess     = 0   // Operation completed successfully
	ExitGeneral     = 1   // Unknown/unhandled error, invalid input
	ExitUnsupported = 2   // Radio or wallet capability missing
	ExitDevice      = 3   // No chip selected, or chip busy
	ExitTransport   = 4   // Radio link failed, timed out or dropped
	ExitVerifier    = 5   // Verifier refused or could not be reached
	ExitNotFound    = 6   // Resource doesn't exist
	ExitCancelled   = 130 // User aborted
)

// Error codes (strings) for programmatic error handling
const (
	CodeUnsupported         = "UNSUPPORTED_ENVIRONMENT"
	CodeDeviceSelection     = "DEVICE_SELECTION_FAILED"
	CodeDeviceBusy          = "DEVICE_BUSY"
	CodeTransport           = "TRANSPORT_ERROR"
	CodeTimeout             = "TIMEOUT"
	CodeDisconnected        = "DISCONNECTED"
	CodeVerifierRejected    = "VERIFIER_REJECTED"
	CodeVerifierUnreachable = "VERIFIER_UNREACHABLE"
	CodeUserCancelled       = "USER_CANCELLED"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code" yaml:"code"`
	Message   string `json:"message" yaml:"message"`
	Hint      string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
	ExitCode  int    `json:"-" yaml:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Unsupported creates an error for a missing radio or wallet capability.
// It is fatal to the whole flow and not worth retrying.
func Unsupported(detail string) *CLIError {
	return &CLIError{
		Code:      CodeUnsupported,
		Message:   fmt.Sprintf("environment not supported: %s", detail),
		Hint:      "Build with -tags ble on a host with a Bluetooth adapter, or use --simulate",
		Retryable: false,
		ExitCode:  ExitUnsupported,
	}
}

// DeviceSelection creates an error when no chip was selected.
func DeviceSelection(detail string) *CLIError {
	return &CLIError{
		Code:      CodeDeviceSelection,
		Message:   fmt.Sprintf("no chip selected: %s", detail),
		Hint:      "Hold the chip close to the reader and run 'chipctl scan' to check it is advertising",
		Retryable: true,
		ExitCode:  ExitDevice,
	}
}

// DeviceBusy creates an error when a chip already has a live session.
func DeviceBusy(peripheral string) *CLIError {
	return &CLIError{
		Code:      CodeDeviceBusy,
		Message:   fmt.Sprintf("chip '%s' is busy with another session", peripheral),
		Hint:      "Wait for the other session to finish",
		Retryable: true,
		ExitCode:  ExitDevice,
	}
}

// Transport creates an error for a radio-layer failure.
func Transport(detail string) *CLIError {
	return &CLIError{
		Code:      CodeTransport,
		Message:   fmt.Sprintf("radio link failed: %s", detail),
		Hint:      "Start a new session; failed writes are never retried in place",
		Retryable: true,
		ExitCode:  ExitTransport,
	}
}

// Timeout creates an error for a step that did not finish in time.
func Timeout(step string) *CLIError {
	return &CLIError{
		Code:      CodeTimeout,
		Message:   fmt.Sprintf("timed out %s", step),
		Hint:      "The chip may be locked or out of range; start a new session",
		Retryable: true,
		ExitCode:  ExitTransport,
	}
}

// Disconnected creates an error for a link the chip dropped.
func Disconnected(peripheral string) *CLIError {
	return &CLIError{
		Code:      CodeDisconnected,
		Message:   fmt.Sprintf("chip '%s' disconnected", peripheral),
		Hint:      "Keep the chip in range and start a new session",
		Retryable: true,
		ExitCode:  ExitTransport,
	}
}

// VerifierRejected creates an error for a refused redemption. The
// attestation is spent; only a fresh challenge can succeed.
func VerifierRejected(reason string) *CLIError {
	return &CLIError{
		Code:      CodeVerifierRejected,
		Message:   fmt.Sprintf("verifier rejected the attestation: %s", reason),
		Hint:      "Run 'chipctl claim' again to sign a fresh challenge",
		Retryable: false,
		ExitCode:  ExitVerifier,
	}
}

// VerifierUnreachable creates an error when the node cannot be reached.
func VerifierUnreachable(target string) *CLIError {
	return &CLIError{
		Code:      CodeVerifierUnreachable,
		Message:   fmt.Sprintf("verifier at '%s' is unreachable", target),
		Hint:      "Check --rpc-url and network connectivity",
		Retryable: true,
		ExitCode:  ExitVerifier,
	}
}

// UserCancelled creates an error for an explicit abort.
func UserCancelled() *CLIError {
	return &CLIError{
		Code:      CodeUserCancelled,
		Message:   "cancelled",
		Retryable: false,
		ExitCode:  ExitCancelled,
	}
}

// InvalidConfig creates an error for missing or malformed configuration.
func InvalidConfig(detail string) *CLIError {
	return &CLIError{
		Code:      CodeInvalidConfig,
		Message:   fmt.Sprintf("invalid configuration: %s", detail),
		Hint:      "Set it in ~/.config/esp5791/config.yaml, an ESP5791_* environment variable, or a flag",
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// InvalidInput creates an error for a bad argument.
func InvalidInput(detail string) *CLIError {
	return &CLIError{
		Code:      CodeInvalidInput,
		Message:   detail,
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// NotFound creates an error when a resource doesn't exist.
func NotFound(resource, name string) *CLIError {
	return &CLIError{
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("%s '%s' not found", resource, name),
		Hint:      "List entries with 'chipctl history'",
		Retryable: false,
		ExitCode:  ExitNotFound,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err.Error())
	}
	return &CLIError{
		Code:      CodeInternalError,
		Message:   msg,
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// FormatError returns the error formatted for the given output format.
// Supported formats: "json" for JSON output, anything else for human-readable table format.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":"%s","message":"%s"}`, err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError writes the error to w in the appropriate format.
func PrintError(w io.Writer, err *CLIError, outputFormat string) {
	fmt.Fprintln(w, FormatError(err, outputFormat))
}
