package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// jsonError implements rpc.Error for classification tests.
type jsonError struct {
	code int
	msg  string
}

func (e *jsonError) Error() string  { return e.msg }
func (e *jsonError) ErrorCode() int { return e.code }

var _ rpc.Error = (*jsonError)(nil)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
		Jitter:       0,
	}
}

func TestRetryConfigDefaults(t *testing.T) {
	t.Parallel()
	t.Log("Testing DefaultRetryConfig returns expected default values")
	cfg := DefaultRetryConfig()

	if cfg.InitialDelay != 250*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 250ms", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 4*time.Second {
		t.Errorf("MaxDelay = %v, want 4s", cfg.MaxDelay)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %v, want 4", cfg.MaxAttempts)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	t.Log("Testing IsRetryable separates transient node failures from application errors")
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"node unavailable", ErrNodeUnavailable, true},
		{"wrapped node unavailable", fmt.Errorf("dial: %w", ErrNodeUnavailable), true},
		{"EOF", io.EOF, true},
		{"connection refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"http 429", rpc.HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{"http 503", rpc.HTTPError{StatusCode: http.StatusServiceUnavailable}, true},
		{"http 401", rpc.HTTPError{StatusCode: http.StatusUnauthorized}, false},
		{"rate limited", &jsonError{code: -32005, msg: "limit exceeded"}, true},
		{"execution reverted", &jsonError{code: 3, msg: "execution reverted"}, false},
		{"net timeout", timeoutError{}, true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("generic error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestRetrySuccessAfterFailures(t *testing.T) {
	t.Parallel()
	t.Log("Testing Retry succeeds after retrying through initial failures")

	var attempts int32
	err := Retry(context.Background(), fastRetry(5), func() error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return ErrNodeUnavailable
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	t.Parallel()
	t.Log("Testing Retry returns immediately for non-retryable errors")
	reverted := &jsonError{code: 3, msg: "execution reverted"}

	var attempts int32
	err := Retry(context.Background(), fastRetry(5), func() error {
		atomic.AddInt32(&attempts, 1)
		return reverted
	})

	if !errors.Is(err, reverted) {
		t.Errorf("Retry error = %v, want revert", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryMaxAttempts(t *testing.T) {
	t.Parallel()
	t.Log("Testing Retry stops after reaching max attempts with ErrMaxRetriesExceeded")

	var attempts int32
	err := Retry(context.Background(), fastRetry(3), func() error {
		atomic.AddInt32(&attempts, 1)
		return ErrNodeUnavailable
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Retry error = %v, want ErrMaxRetriesExceeded", err)
	}
	if !errors.Is(err, ErrNodeUnavailable) {
		t.Errorf("Retry error = %v, should carry the last failure", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	t.Parallel()
	t.Log("Testing Retry respects context cancellation during backoff")
	cfg := fastRetry(10)
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		return ErrNodeUnavailable
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRetry_ContextCancelledBeforeFirstAttempt(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestRetry_ZeroMaxAttempts(t *testing.T) {
	t.Parallel()
	var attempts int32
	_ = Retry(context.Background(), RetryConfig{}, func() error {
		atomic.AddInt32(&attempts, 1)
		return ErrNodeUnavailable
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryBackoffGrows(t *testing.T) {
	t.Parallel()
	t.Log("Testing Retry waits 10ms, 20ms, 40ms between four attempts")
	cfg := RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  4,
	}

	start := time.Now()
	_ = Retry(context.Background(), cfg, func() error { return ErrNodeUnavailable })
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("elapsed %v is too short (expected ~70ms)", elapsed)
	}
}
