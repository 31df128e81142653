package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtools-at/esp5791/internal/config"
	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/chain"
	"github.com/xtools-at/esp5791/pkg/claim"
	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/session"
	"github.com/xtools-at/esp5791/pkg/transport"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

// toCLIError maps a command error onto the CLI error taxonomy.
func toCLIError(err error) *clierror.CLIError {
	var cliErr *clierror.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var rejected *verifier.RejectedError
	if errors.As(err, &rejected) {
		return clierror.VerifierRejected(rejected.Reason)
	}

	var sessErr *session.Error
	if errors.As(err, &sessErr) {
		return sessionError(sessErr)
	}

	switch {
	case errors.Is(err, verifier.ErrUserCancelled), errors.Is(err, context.Canceled):
		return clierror.UserCancelled()
	case errors.Is(err, verifier.ErrUnreachable), errors.Is(err, chain.ErrNodeUnavailable):
		return clierror.VerifierUnreachable(verifierTarget())
	case errors.Is(err, verifier.ErrAlreadySubmitted):
		return clierror.InvalidInput("this signature was already submitted; sign a fresh challenge")
	case errors.Is(err, transport.ErrUnsupported):
		return clierror.Unsupported(err.Error())
	case transport.IsDeviceSelectionError(err):
		return clierror.DeviceSelection(err.Error())
	case errors.Is(err, chain.ErrNoAccount), errors.Is(err, config.ErrNoPrivateKey),
		errors.Is(err, config.ErrNoRPCURL), errors.Is(err, config.ErrNoContract),
		errors.Is(err, claim.ErrNoVerifier):
		return clierror.InvalidConfig(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return clierror.Timeout("waiting for the node")
	}

	if attestation.ErrorCode(err) != "" {
		return clierror.InvalidInput(err.Error())
	}
	return clierror.InternalError(err)
}

func sessionError(e *session.Error) *clierror.CLIError {
	switch e.Reason {
	case session.ReasonUnsupported:
		return clierror.Unsupported(e.Error())
	case session.ReasonDeviceSelection:
		return clierror.DeviceSelection(e.Error())
	case session.ReasonBusy:
		return clierror.DeviceBusy(peripheralOf(e))
	case session.ReasonTimeout:
		return clierror.Timeout(fmt.Sprintf("in %s", e.State))
	case session.ReasonDisconnected:
		return clierror.Disconnected(peripheralOf(e))
	case session.ReasonCancelled:
		return clierror.UserCancelled()
	default:
		return clierror.Transport(e.Error())
	}
}

// lastPeripheral is the peripheral the current command targeted, if one was
// named.
var lastPeripheral string

func peripheralOf(*session.Error) string {
	if lastPeripheral != "" {
		return lastPeripheral
	}
	return "(discovered)"
}

func verifierTarget() string {
	switch {
	case sim != nil:
		return "simulated verifier"
	case cfg != nil && cfg.RPCURL != "":
		return cfg.RPCURL
	default:
		return "verifier"
	}
}
