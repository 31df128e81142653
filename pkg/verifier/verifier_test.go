package verifier

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtools-at/esp5791/pkg/attestation"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func testAttestation(seed string, age time.Duration) *attestation.Attestation {
	sig := crypto.Keccak256([]byte(seed), []byte("r"))
	sig = append(sig, crypto.Keccak256([]byte(seed), []byte("s"))...)
	sig = append(sig, 27)
	return &attestation.Attestation{
		Signature: sig,
		Checkpoint: attestation.Checkpoint{
			Number: 100,
			Hash:   common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			Time:   testNow.Add(-age),
		},
		ChipAddress: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Claimant:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
}

type userRejected struct{}

func (userRejected) Error() string  { return "User rejected the request." }
func (userRejected) ErrorCode() int { return 4001 }

func newTestClient(contract Contract, opts ...Option) *Client {
	base := []Option{WithClock(func() time.Time { return testNow })}
	return NewClient(contract, append(base, opts...)...)
}

func TestSubmit_Redeems(t *testing.T) {
	contract := NewMockContract()
	client := newTestClient(contract)
	att := testAttestation("ok", time.Minute)

	receipt, err := client.Submit(context.Background(), att)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())

	calls := contract.Transfers()
	require.Len(t, calls, 1)
	assert.Equal(t, att.Signature, calls[0].Signature)
	assert.Equal(t, uint64(100), calls[0].BlockNumber)
	assert.True(t, calls[0].UseSafeTransfer)

	_, err = client.Submit(context.Background(), att)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, contract.Transfers(), 1)
}

func TestSubmit_RejectedWithoutRetry(t *testing.T) {
	t.Log("The verifier refuses with a stale checkpoint reason")
	contract := NewMockContract(WithRevert("stale checkpoint"))
	client := newTestClient(contract)
	att := testAttestation("stale-remote", time.Minute)

	_, err := client.Submit(context.Background(), att)
	require.ErrorIs(t, err, ErrRejected)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "stale checkpoint", rejected.Reason)
	assert.False(t, rejected.Local)
	assert.Len(t, contract.Transfers(), 1, "rejection must not be retried")

	t.Log("The same attestation cannot be resubmitted; a new challenge is required")
	contract.SetTransferError(nil)
	_, err = client.Submit(context.Background(), att)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, contract.Transfers(), 1)

	receipt, err := client.Submit(context.Background(), testAttestation("fresh-challenge", time.Second))
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
}

func TestSubmit_LocalFreshnessCheck(t *testing.T) {
	contract := NewMockContract()
	client := newTestClient(contract, WithGate(&attestation.Gate{FreshnessBound: 20 * time.Minute}))

	_, err := client.Submit(context.Background(), testAttestation("old", 21*time.Minute))
	require.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, attestation.ErrStaleCheckpoint)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.True(t, rejected.Local)
	assert.Empty(t, contract.Transfers(), "stale attestation reached the verifier")
}

func TestSubmit_InvalidAttestation(t *testing.T) {
	contract := NewMockContract()
	client := newTestClient(contract)

	att := testAttestation("empty", time.Minute)
	att.Signature = nil
	_, err := client.Submit(context.Background(), att)
	assert.ErrorIs(t, err, attestation.ErrInvalidSignature)

	_, err = client.Submit(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, contract.Transfers())
}

func TestSubmit_RevertedReceipt(t *testing.T) {
	contract := NewMockContract(WithReceiptStatus(0))
	client := newTestClient(contract)

	receipt, err := client.Submit(context.Background(), testAttestation("reverted", time.Minute))
	require.ErrorIs(t, err, ErrRejected)
	assert.NotNil(t, receipt)
	assert.EqualError(t, err, "verifier rejected: transaction reverted")
}

func TestSubmit_UserCancelled(t *testing.T) {
	t.Run("context cancelled", func(t *testing.T) {
		contract := NewMockContract()
		client := newTestClient(contract)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		att := testAttestation("cancel", time.Minute)
		_, err := client.Submit(ctx, att)
		assert.ErrorIs(t, err, ErrUserCancelled)
		assert.NotErrorIs(t, err, ErrRejected)

		t.Log("A cancelled submission leaves the attestation usable")
		_, err = client.Submit(context.Background(), att)
		assert.NoError(t, err)
	})

	t.Run("signer declined", func(t *testing.T) {
		contract := NewMockContract(WithTransferError(userRejected{}))
		client := newTestClient(contract)

		_, err := client.Submit(context.Background(), testAttestation("declined", time.Minute))
		assert.ErrorIs(t, err, ErrUserCancelled)
		assert.Equal(t, CircuitClosed, client.Breaker().State())
	})
}

func TestSubmit_UnreachableTripsBreaker(t *testing.T) {
	now := testNow
	contract := NewMockContract(WithTransferError(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	client := NewClient(contract,
		WithClock(func() time.Time { return now }),
		WithGate(&attestation.Gate{FreshnessBound: time.Hour}),
		WithBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 10 * time.Second}),
	)
	att := testAttestation("offline", time.Minute)

	for i := 0; i < 2; i++ {
		_, err := client.Submit(context.Background(), att)
		require.ErrorIs(t, err, ErrUnreachable, "attempt %d", i+1)
	}
	assert.Equal(t, CircuitOpen, client.Breaker().State())

	t.Log("While open, submissions fail fast without touching the node")
	_, err := client.Submit(context.Background(), att)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Len(t, contract.Transfers(), 2)

	t.Log("After the reset timeout one probe goes through and closes the circuit")
	now = now.Add(11 * time.Second)
	contract.SetTransferError(nil)
	_, err = client.Submit(context.Background(), att)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, client.Breaker().State())
}

func TestSubmit_RejectionsDoNotTripBreaker(t *testing.T) {
	contract := NewMockContract(WithRevert("unknown chip"))
	client := newTestClient(contract, WithBreaker(CircuitBreakerConfig{FailureThreshold: 2}))

	for i := 0; i < 4; i++ {
		_, err := client.Submit(context.Background(), testAttestation(fmt.Sprintf("chip-%d", i), time.Minute))
		require.ErrorIs(t, err, ErrRejected)
	}
	assert.Equal(t, CircuitClosed, client.Breaker().State())
	assert.Len(t, contract.Transfers(), 4)
}

func TestSubmit_UnsafeTransfer(t *testing.T) {
	contract := NewMockContract()
	client := newTestClient(contract, WithSafeTransfer(false))

	_, err := client.Submit(context.Background(), testAttestation("unsafe", time.Minute))
	require.NoError(t, err)
	assert.False(t, contract.Transfers()[0].UseSafeTransfer)
}

func TestTransfer_SkipsLocalGate(t *testing.T) {
	t.Log("A signature captured long ago is still sent; the verifier decides")
	contract := NewMockContract()
	client := newTestClient(contract)
	att := testAttestation("offline", 48*time.Hour)

	receipt, err := client.Transfer(context.Background(), att.Signature, 100)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	require.Len(t, contract.Transfers(), 1)

	t.Log("The same signature is spent for Submit too")
	att.Checkpoint.Time = testNow
	_, err = client.Submit(context.Background(), att)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestTransfer_ValidatesInput(t *testing.T) {
	client := newTestClient(NewMockContract())
	_, err := client.Transfer(context.Background(), []byte{1, 2, 3}, 100)
	assert.Error(t, err)
	_, err = client.Transfer(context.Background(), testAttestation("x", 0).Signature, 0)
	assert.Error(t, err)
}

func TestTransfer_UnreachableReleasesSignature(t *testing.T) {
	contract := NewMockContract(WithTransferError(syscall.ECONNREFUSED))
	client := newTestClient(contract)
	sig := testAttestation("retry-later", 0).Signature

	_, err := client.Transfer(context.Background(), sig, 100)
	require.ErrorIs(t, err, ErrUnreachable)

	contract.SetTransferError(nil)
	_, err = client.Transfer(context.Background(), sig, 100)
	assert.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		class  error
		reason string
	}{
		{"revert data", RevertError("already claimed"), ErrRejected, "already claimed"},
		{"flattened revert", errors.New("failed to estimate gas needed: execution reverted: unknown chip"), ErrRejected, "unknown chip"},
		{"bare revert", errors.New("execution reverted"), ErrRejected, "execution reverted"},
		{"other node refusal", errors.New("insufficient funds for gas * price + value"), ErrRejected, "insufficient funds for gas * price + value"},
		{"http 502", fmt.Errorf("post: %w", rpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}), ErrUnreachable, ""},
		{"connection refused", syscall.ECONNREFUSED, ErrUnreachable, ""},
		{"deadline", context.DeadlineExceeded, ErrUnreachable, ""},
		{"cancelled", context.Canceled, ErrUserCancelled, ""},
		{"eip-1193 rejection", userRejected{}, ErrUserCancelled, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.ErrorIs(t, got, tt.class)
			if tt.reason != "" {
				var rejected *RejectedError
				require.ErrorAs(t, got, &rejected)
				assert.Equal(t, tt.reason, rejected.Reason)
			}
		})
	}

	assert.NoError(t, Classify(nil))
	already := &RejectedError{Reason: "x"}
	assert.Same(t, already, Classify(already))
}

func TestSeed(t *testing.T) {
	contract := NewMockContract()
	client := newTestClient(contract)
	ctx := context.Background()
	chipA := common.HexToAddress("0xa0")
	chipB := common.HexToAddress("0xb0")

	_, err := client.Seed(ctx, nil, nil)
	assert.Error(t, err)
	_, err = client.Seed(ctx, []common.Address{chipA}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	assert.Error(t, err)
	assert.Empty(t, contract.Seeds())

	receipt, err := client.Seed(ctx, []common.Address{chipA, chipB}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	id, ok := contract.TokenOf(chipB)
	require.True(t, ok)
	assert.Equal(t, int64(2), id.Int64())

	t.Log("Updating a chip moves its token to the replacement address")
	chipC := common.HexToAddress("0xc0")
	_, err = client.UpdateChips(ctx, []common.Address{chipA}, []common.Address{chipC})
	require.NoError(t, err)
	_, ok = contract.TokenOf(chipA)
	assert.False(t, ok)
	id, ok = contract.TokenOf(chipC)
	require.True(t, ok)
	assert.Equal(t, int64(1), id.Int64())

	_, err = client.UpdateChips(ctx, []common.Address{chipA}, nil)
	assert.Error(t, err)
}

func TestSeed_ClassifiesErrors(t *testing.T) {
	contract := NewMockContract(WithAdminError(RevertError("AccessControl: missing role")))
	client := newTestClient(contract)

	_, err := client.Seed(context.Background(), []common.Address{common.HexToAddress("0xa0")}, []*big.Int{big.NewInt(1)})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "AccessControl: missing role", rejected.Reason)
}

func TestParsedABI(t *testing.T) {
	parsed, err := ParsedABI()
	require.NoError(t, err)

	method, ok := parsed.Methods["transferTokenWithChip"]
	require.True(t, ok)
	assert.Equal(t, "transferTokenWithChip(bytes,uint256,bool)", method.Sig)

	for _, name := range []string{"seedChipToTokenMapping", "updateChips"} {
		_, ok := parsed.Methods[name]
		assert.True(t, ok, name)
	}

	t.Log("Call data packs the signature, block number and transfer mode")
	data, err := parsed.Pack("transferTokenWithChip", make([]byte, 65), big.NewInt(100), true)
	require.NoError(t, err)
	assert.Equal(t, method.ID, data[:4])
}
