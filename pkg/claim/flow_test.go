package claim

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/chain"
	"github.com/xtools-at/esp5791/pkg/session"
	"github.com/xtools-at/esp5791/pkg/store"
	"github.com/xtools-at/esp5791/pkg/transport"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

var claimant = common.HexToAddress("0x1111111111111111111111111111111111111111")

// fakeChain serves a new block on every Block call.
type fakeChain struct {
	mu         sync.Mutex
	accountErr error
	blockErr   error
	next       uint64
	blockCalls int
}

func (f *fakeChain) Account(context.Context) (common.Address, error) {
	if f.accountErr != nil {
		return common.Address{}, f.accountErr
	}
	return claimant, nil
}

func (f *fakeChain) Block(context.Context) (attestation.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockCalls++
	if f.blockErr != nil {
		return attestation.Checkpoint{}, f.blockErr
	}
	f.next++
	number := 99 + f.next
	return attestation.Checkpoint{
		Number: number,
		Hash:   crypto.Keccak256Hash([]byte{byte(number)}),
		Time:   time.Now(),
	}, nil
}

func (f *fakeChain) Network(context.Context) (chain.Network, error) {
	return chain.Network{ID: 11155111, Name: chain.NetworkName(11155111)}, nil
}

func sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.DiscoverTimeout = time.Second
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.SignatureTimeout = 2 * time.Second
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MaxPollInterval = 40 * time.Millisecond
	return cfg
}

type fixture struct {
	chip     *transport.MockChip
	adapter  *transport.MockAdapter
	chain    *fakeChain
	contract *verifier.MockContract
	db       *store.Store
	flow     *Flow
}

func newFixture(t *testing.T, chipOpts []transport.MockChipOption, cfg session.Config, opts ...Option) *fixture {
	t.Helper()
	chip, err := transport.NewMockChip("AA:BB:CC:DD:EE:01", "ESP5791", chipOpts...)
	require.NoError(t, err)
	adapter := transport.NewMockAdapter(transport.WithChips(chip))
	mgr, err := session.NewManager(adapter, session.WithConfig(cfg))
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fx := &fixture{
		chip:     chip,
		adapter:  adapter,
		chain:    &fakeChain{},
		contract: verifier.NewMockContract(),
		db:       db,
	}
	base := []Option{
		WithVerifier(verifier.NewClient(fx.contract)),
		WithHistory(db),
	}
	fx.flow = New(fx.chain, mgr, append(base, opts...)...)
	return fx
}

func (fx *fixture) history(t *testing.T) []*store.Claim {
	t.Helper()
	claims, err := fx.db.QueryClaims(store.ClaimFilter{})
	require.NoError(t, err)
	return claims
}

func TestClaim_Redeems(t *testing.T) {
	fx := newFixture(t, nil, sessionConfig(), WithChipVerification())

	res, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
	require.NoError(t, err)
	require.NotNil(t, res.Attestation)
	assert.True(t, res.Receipt.Succeeded())
	assert.Equal(t, "Ethereum Sepolia", res.Network.Name)
	assert.Equal(t, claimant, res.Challenge.Claimant)
	assert.Equal(t, fx.chip.Address(), res.Attestation.ChipAddress)

	t.Log("The verifier receives the signature and the block it was made over")
	calls := fx.contract.Transfers()
	require.Len(t, calls, 1)
	assert.Equal(t, res.Attestation.Signature, calls[0].Signature)
	assert.Equal(t, res.Challenge.Checkpoint.Number, calls[0].BlockNumber)

	claims := fx.history(t)
	require.Len(t, claims, 1)
	c := claims[0]
	assert.Equal(t, res.ClaimID, c.ID)
	assert.Equal(t, res.SessionID, c.SessionID)
	assert.Equal(t, store.OutcomeRedeemed, c.Outcome)
	assert.Equal(t, res.Receipt.TxHash.Hex(), c.TxHash)
	assert.Equal(t, fx.chip.Address().Hex(), c.ChipAddress)
	assert.Equal(t, hexutil.Encode(res.Attestation.Signature), c.Signature)
	assert.Equal(t, uint64(11155111), c.ChainID)
	assert.Equal(t, fx.chip.Handle().ID, c.PeripheralID)
}

func TestPrepare_RequiresAccountAndBlock(t *testing.T) {
	t.Run("no account", func(t *testing.T) {
		fx := newFixture(t, nil, sessionConfig())
		fx.chain.accountErr = chain.ErrNoAccount

		_, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
		require.ErrorIs(t, err, chain.ErrNoAccount)
		assert.Zero(t, fx.chain.blockCalls, "block fetched without an account")
		assert.Zero(t, fx.adapter.CountOps(transport.OpConnect, 0))
		assert.Empty(t, fx.history(t))
	})

	t.Run("no block", func(t *testing.T) {
		fx := newFixture(t, nil, sessionConfig())
		fx.chain.blockErr = chain.ErrNoBlock

		_, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
		require.ErrorIs(t, err, chain.ErrNoBlock)
		assert.Zero(t, fx.adapter.CountOps(transport.OpConnect, 0))
		assert.Zero(t, fx.adapter.CountOps(transport.OpWrite, 0))
		assert.Empty(t, fx.history(t))
	})
}

func TestClaim_RejectedThenFreshChallenge(t *testing.T) {
	fx := newFixture(t, nil, sessionConfig())
	fx.contract.SetTransferError(verifier.RevertError("stale checkpoint"))

	first, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
	require.ErrorIs(t, err, verifier.ErrRejected)
	assert.Len(t, fx.contract.Transfers(), 1, "rejection must not be retried")

	t.Log("A retry builds a new challenge over a newer block")
	fx.contract.SetTransferError(nil)
	second, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
	require.NoError(t, err)
	assert.Greater(t, second.Challenge.Checkpoint.Number, first.Challenge.Checkpoint.Number)
	assert.NotEqual(t, first.Challenge.Payload(), second.Challenge.Payload())
	assert.NotEqual(t, first.ClaimID, second.ClaimID)

	claims := fx.history(t)
	require.Len(t, claims, 2)
	byID := map[string]*store.Claim{claims[0].ID: claims[0], claims[1].ID: claims[1]}
	assert.Equal(t, store.OutcomeRejected, byID[first.ClaimID].Outcome)
	assert.Equal(t, "stale checkpoint", byID[first.ClaimID].Reason)
	assert.Equal(t, store.OutcomeRedeemed, byID[second.ClaimID].Outcome)
}

func TestClaim_VerifierUnreachable(t *testing.T) {
	fx := newFixture(t, nil, sessionConfig())
	fx.contract.SetTransferError(chain.ErrNodeUnavailable)

	_, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
	require.ErrorIs(t, err, verifier.ErrUnreachable)

	claims := fx.history(t)
	require.Len(t, claims, 1)
	assert.Equal(t, store.OutcomeAborted, claims[0].Outcome)
	assert.Equal(t, "verifier_unreachable", claims[0].Reason)
}

func TestSign_SessionFailureIsRecorded(t *testing.T) {
	cfg := sessionConfig()
	cfg.SignatureTimeout = 150 * time.Millisecond
	fx := newFixture(t, []transport.MockChipOption{transport.WithSilentChip()}, cfg)

	_, err := fx.flow.Claim(context.Background(), fx.chip.Handle())
	require.ErrorIs(t, err, session.ErrTimeout)
	assert.Empty(t, fx.contract.Transfers())

	claims := fx.history(t)
	require.Len(t, claims, 1)
	assert.Equal(t, store.OutcomeFailed, claims[0].Outcome)
	assert.Equal(t, string(session.ReasonTimeout), claims[0].Reason)
}

func TestSign_ChipVerificationRejectsForeignSignature(t *testing.T) {
	sig := make([]byte, attestation.SignatureSize)
	sig[64] = 27
	sig[0] = 1
	fx := newFixture(t, []transport.MockChipOption{transport.WithFixedSignature(sig)}, sessionConfig(), WithChipVerification())

	res, err := fx.flow.Sign(context.Background(), fx.chip.Handle())
	require.ErrorIs(t, err, attestation.ErrInvalidSignature)
	assert.Nil(t, res.Attestation)

	claims := fx.history(t)
	require.Len(t, claims, 1)
	assert.Equal(t, store.OutcomeFailed, claims[0].Outcome)
	assert.Equal(t, attestation.ErrCodeInvalidSignature, claims[0].Reason)
}

func TestSign_WithoutVerifier(t *testing.T) {
	fx := newFixture(t, nil, sessionConfig())
	flow := New(fx.chain, fx.flow.sessions, WithHistory(fx.db))

	_, err := flow.Claim(context.Background(), fx.chip.Handle())
	assert.ErrorIs(t, err, ErrNoVerifier)

	res, err := flow.Sign(context.Background(), fx.chip.Handle())
	require.NoError(t, err)
	assert.NoError(t, res.Attestation.VerifyChip())

	claims := fx.history(t)
	require.Len(t, claims, 1)
	assert.Equal(t, store.OutcomeSigned, claims[0].Outcome)
}

func TestSign_DiscoversWhenNoHandle(t *testing.T) {
	fx := newFixture(t, nil, sessionConfig())

	res, err := fx.flow.Sign(context.Background(), transport.PeripheralHandle{})
	require.NoError(t, err)
	assert.Equal(t, fx.chip.Address(), res.Attestation.ChipAddress)

	claims := fx.history(t)
	require.Len(t, claims, 1)
	assert.Equal(t, fx.chip.Handle().ID, claims[0].PeripheralID)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&verifier.RejectedError{Reason: "already claimed"}, "already claimed"},
		{&session.Error{Reason: session.ReasonDisconnected}, "disconnected"},
		{verifier.ErrUnreachable, "verifier_unreachable"},
		{verifier.ErrUserCancelled, "user_cancelled"},
		{verifier.ErrAlreadySubmitted, "already_submitted"},
		{attestation.ErrStaleCheckpoint, attestation.ErrCodeStaleCheckpoint},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err))
	}
}
