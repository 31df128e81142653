package clierror

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		got      int
		expected int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitGeneral", ExitGeneral, 1},
		{"ExitUnsupported", ExitUnsupported, 2},
		{"ExitDevice", ExitDevice, 3},
		{"ExitTransport", ExitTransport, 4},
		{"ExitVerifier", ExitVerifier, 5},
		{"ExitNotFound", ExitNotFound, 6},
		{"ExitCancelled", ExitCancelled, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       *CLIError
		code      string
		exit      int
		retryable bool
		contains  string
	}{
		{"Unsupported", Unsupported("no BLE radio"), CodeUnsupported, ExitUnsupported, false, "no BLE radio"},
		{"DeviceSelection", DeviceSelection("no chip in range"), CodeDeviceSelection, ExitDevice, true, "no chip in range"},
		{"DeviceBusy", DeviceBusy("AA:BB"), CodeDeviceBusy, ExitDevice, true, "AA:BB"},
		{"Transport", Transport("write failed"), CodeTransport, ExitTransport, true, "write failed"},
		{"Timeout", Timeout("waiting for signature"), CodeTimeout, ExitTransport, true, "waiting for signature"},
		{"Disconnected", Disconnected("AA:BB"), CodeDisconnected, ExitTransport, true, "AA:BB"},
		{"VerifierRejected", VerifierRejected("stale checkpoint"), CodeVerifierRejected, ExitVerifier, false, "stale checkpoint"},
		{"VerifierUnreachable", VerifierUnreachable("http://localhost:8545"), CodeVerifierUnreachable, ExitVerifier, true, "localhost:8545"},
		{"UserCancelled", UserCancelled(), CodeUserCancelled, ExitCancelled, false, "cancelled"},
		{"InvalidConfig", InvalidConfig("rpc_url is required"), CodeInvalidConfig, ExitGeneral, false, "rpc_url"},
		{"InvalidInput", InvalidInput("bad address"), CodeInvalidInput, ExitGeneral, false, "bad address"},
		{"NotFound", NotFound("claim", "abc"), CodeNotFound, ExitNotFound, false, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.ExitCode != tt.exit {
				t.Errorf("ExitCode = %d, want %d", tt.err.ExitCode, tt.exit)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
			if !strings.Contains(tt.err.Message, tt.contains) {
				t.Errorf("Message %q should contain %q", tt.err.Message, tt.contains)
			}
			if tt.err.Error() != tt.err.Message {
				t.Errorf("Error() = %q, want Message", tt.err.Error())
			}
		})
	}
}

func TestVerifierRejected_HintsAtFreshChallenge(t *testing.T) {
	t.Parallel()
	t.Log("A rejected attestation is spent, so the hint points at a new claim, not a resubmission")
	err := VerifierRejected("already claimed")
	if !strings.Contains(err.Hint, "fresh challenge") {
		t.Errorf("Hint = %q", err.Hint)
	}
}

func TestInternalError(t *testing.T) {
	t.Parallel()
	err := InternalError(nil)
	if err.Code != CodeInternalError {
		t.Errorf("Code = %q, want %q", err.Code, CodeInternalError)
	}
	if err.ExitCode != ExitGeneral {
		t.Errorf("ExitCode = %d, want %d", err.ExitCode, ExitGeneral)
	}

	err2 := InternalError(errors.New("database locked"))
	if !strings.Contains(err2.Message, "database locked") {
		t.Errorf("Message should contain original error, got %q", err2.Message)
	}
}

func TestCLIError_JSONSerialization(t *testing.T) {
	t.Parallel()
	err := VerifierRejected("stale checkpoint")

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("json.Marshal failed: %v", jsonErr)
	}

	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
		t.Fatalf("json.Unmarshal failed: %v", jsonErr)
	}
	if parsed["code"] != CodeVerifierRejected {
		t.Errorf("JSON code = %v, want %v", parsed["code"], CodeVerifierRejected)
	}
	if parsed["retryable"] != false {
		t.Errorf("JSON retryable = %v, want false", parsed["retryable"])
	}
	if _, exists := parsed["ExitCode"]; exists {
		t.Error("ExitCode should not be serialized to JSON")
	}

	t.Log("Empty hint is omitted")
	data, _ = json.Marshal(UserCancelled())
	parsed = nil
	_ = json.Unmarshal(data, &parsed)
	if _, exists := parsed["hint"]; exists {
		t.Error("Empty hint should be omitted from JSON")
	}
}

func TestFormatError(t *testing.T) {
	t.Parallel()
	err := Timeout("waiting for signature")

	out := FormatError(err, "json")
	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(out), &parsed); jsonErr != nil {
		t.Fatalf("FormatError(json) produced invalid JSON: %v\nOutput: %s", jsonErr, out)
	}

	human := FormatError(err, "table")
	if !strings.HasPrefix(human, "Error [TIMEOUT]: timed out waiting for signature") {
		t.Errorf("unexpected human output: %q", human)
	}
	if !strings.Contains(human, "\nHint: ") {
		t.Errorf("human output missing hint: %q", human)
	}

	if got := FormatError(UserCancelled(), "table"); strings.Contains(got, "Hint") {
		t.Errorf("no hint expected, got %q", got)
	}
}

func TestPrintError(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	PrintError(&buf, NotFound("claim", "abc"), "table")
	if !strings.HasSuffix(buf.String(), "\n") || !strings.Contains(buf.String(), "NOT_FOUND") {
		t.Errorf("PrintError wrote %q", buf.String())
	}
}
