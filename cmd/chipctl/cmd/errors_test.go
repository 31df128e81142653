package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/xtools-at/esp5791/internal/config"
	"github.com/xtools-at/esp5791/pkg/chain"
	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/session"
	"github.com/xtools-at/esp5791/pkg/transport"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

func TestToCLIError(t *testing.T) {
	// Cannot run in parallel - reads package state
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"cli error passes through", clierror.NotFound("claim", "x"), clierror.CodeNotFound, clierror.ExitNotFound},
		{"verifier rejected", &verifier.RejectedError{Reason: "stale checkpoint"}, clierror.CodeVerifierRejected, clierror.ExitVerifier},
		{"verifier unreachable", fmt.Errorf("%w: dial", verifier.ErrUnreachable), clierror.CodeVerifierUnreachable, clierror.ExitVerifier},
		{"node unavailable", fmt.Errorf("%w: dial", chain.ErrNodeUnavailable), clierror.CodeVerifierUnreachable, clierror.ExitVerifier},
		{"user cancelled", verifier.ErrUserCancelled, clierror.CodeUserCancelled, clierror.ExitCancelled},
		{"context cancelled", context.Canceled, clierror.CodeUserCancelled, clierror.ExitCancelled},
		{"already submitted", verifier.ErrAlreadySubmitted, clierror.CodeInvalidInput, clierror.ExitGeneral},
		{"no radio", fmt.Errorf("%w: no ble", transport.ErrUnsupported), clierror.CodeUnsupported, clierror.ExitUnsupported},
		{"no account", fmt.Errorf("claim: account: %w", chain.ErrNoAccount), clierror.CodeInvalidConfig, clierror.ExitGeneral},
		{"no key", config.ErrNoPrivateKey, clierror.CodeInvalidConfig, clierror.ExitGeneral},
		{"session timeout", &session.Error{Reason: session.ReasonTimeout, State: session.StateAwaitingSignature}, clierror.CodeTimeout, clierror.ExitTransport},
		{"session busy", &session.Error{Reason: session.ReasonBusy}, clierror.CodeDeviceBusy, clierror.ExitDevice},
		{"session disconnected", &session.Error{Reason: session.ReasonDisconnected}, clierror.CodeDisconnected, clierror.ExitTransport},
		{"session device selection", &session.Error{Reason: session.ReasonDeviceSelection}, clierror.CodeDeviceSelection, clierror.ExitDevice},
		{"session transport", &session.Error{Reason: session.ReasonTransport, Err: transport.ErrWriteFailed}, clierror.CodeTransport, clierror.ExitTransport},
		{"session cancelled", &session.Error{Reason: session.ReasonCancelled}, clierror.CodeUserCancelled, clierror.ExitCancelled},
		{"session unsupported", &session.Error{Reason: session.ReasonUnsupported}, clierror.CodeUnsupported, clierror.ExitUnsupported},
		{"unknown", errors.New("disk full"), clierror.CodeInternalError, clierror.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toCLIError(tt.err)
			if got.Code != tt.code {
				t.Errorf("Code = %s, want %s", got.Code, tt.code)
			}
			if got.ExitCode != tt.exit {
				t.Errorf("ExitCode = %d, want %d", got.ExitCode, tt.exit)
			}
		})
	}
}

func TestToCLIError_RejectionKeepsReason(t *testing.T) {
	got := toCLIError(fmt.Errorf("submit: %w", &verifier.RejectedError{Reason: "chip already claimed"}))
	if got.Retryable {
		t.Error("a rejection is not retryable")
	}
	if want := "verifier rejected the attestation: chip already claimed"; got.Message != want {
		t.Errorf("Message = %q, want %q", got.Message, want)
	}
}
