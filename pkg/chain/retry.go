package chain

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNodeUnavailable marks a transient failure reaching the RPC node.
var ErrNodeUnavailable = errors.New("chain: node unavailable")

// ErrMaxRetriesExceeded is joined with the last error when Retry gives up.
var ErrMaxRetriesExceeded = errors.New("retry: max attempts exceeded")

// rpcLimitExceeded is the JSON-RPC error code public nodes return when rate
// limiting.
const rpcLimitExceeded = -32005

// RetryConfig configures backoff for read-only chain queries.
type RetryConfig struct {
	// InitialDelay is the delay before the first retry. Default: 250ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Default: 4s
	MaxDelay time.Duration

	// Multiplier is applied to the delay after each retry. Default: 2.0
	Multiplier float64

	// MaxAttempts is the maximum number of attempts including the first. Default: 4
	MaxAttempts int

	// Jitter is the random fraction (0-1) added to each delay. Default: 0.1
	Jitter float64
}

// DefaultRetryConfig returns the backoff used for node queries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  4,
		Jitter:       0.1,
	}
}

// IsRetryable reports whether err is a transient node or network failure.
// Context cancellation and JSON-RPC application errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNodeUnavailable) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == rpcLimitExceeded
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Retry runs fn with exponential backoff until it succeeds, fails with a
// non-retryable error, or exhausts MaxAttempts. It honours ctx between
// attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter > 0 {
			wait += time.Duration(rand.Float64() * float64(delay) * cfg.Jitter)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, lastErr)
}
