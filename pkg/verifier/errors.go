package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/xtools-at/esp5791/pkg/chain"
)

// Submission outcome classes.
var (
	ErrUnreachable      = errors.New("verifier unreachable")
	ErrRejected         = errors.New("verifier rejected")
	ErrUserCancelled    = errors.New("user cancelled")
	ErrAlreadySubmitted = errors.New("verifier: attestation already submitted")
)

// userRejectedCode is the EIP-1193 code a signer returns when the user
// declines a request.
const userRejectedCode = 4001

// RejectedError is a refusal by the verifier. Reason is the contract's revert
// reason, or a fixed description when none was given. Local is set when the
// client refused before sending anything.
type RejectedError struct {
	Reason string
	Local  bool
	Err    error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return "verifier rejected: " + e.Reason
}

// Is matches ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Unwrap returns the underlying cause.
func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Classify maps a raw contract call error onto ErrUnreachable,
// ErrUserCancelled or a *RejectedError. Errors that already carry a class
// are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrRejected) || errors.Is(err, ErrUserCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUserCancelled, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %s", ErrUserCancelled, rpcErr.Error())
	}
	if isUnreachable(err) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return &RejectedError{Reason: revertReason(err), Err: err}
}

func isUnreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return true
	}
	return chain.IsRetryable(err)
}

// revertReason extracts the Error(string) payload of a revert. Nodes return
// it as hex data on the JSON-RPC error; gas estimation flattens the error to
// text, so the message is parsed as a fallback.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}

	msg := err.Error()
	const marker = "execution reverted"
	if i := strings.Index(msg, marker); i >= 0 {
		reason := strings.TrimPrefix(msg[i+len(marker):], ":")
		if reason = strings.TrimSpace(reason); reason != "" {
			return reason
		}
		return marker
	}
	return msg
}
