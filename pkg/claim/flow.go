// Package claim runs a complete claim: chain queries, challenge, chip session
// and redemption, with each attempt recorded in the claim history.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/chain"
	"github.com/xtools-at/esp5791/pkg/session"
	"github.com/xtools-at/esp5791/pkg/store"
	"github.com/xtools-at/esp5791/pkg/transport"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

// ErrNoVerifier is returned by Claim when the flow has no verifier.
var ErrNoVerifier = errors.New("claim: no verifier configured")

// Submitter redeems attestations. *verifier.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, att *attestation.Attestation) (*verifier.Receipt, error)
}

// Recorder persists claim history. *store.Store implements it.
type Recorder interface {
	InsertClaim(c *store.Claim) error
	UpdateClaim(id string, u store.ClaimUpdate) error
}

// Result describes one claim attempt.
type Result struct {
	ClaimID     string
	SessionID   string
	Network     chain.Network
	Challenge   attestation.Challenge
	Attestation *attestation.Attestation
	Receipt     *verifier.Receipt
}

// Flow ties the chain client, chip sessions and verifier together.
type Flow struct {
	chain     chain.Client
	sessions  *session.Manager
	verifier  Submitter
	history   Recorder
	verifySig bool
	log       *slog.Logger
	now       func() time.Time
}

// Option configures a Flow.
type Option func(*Flow)

// WithVerifier sets the verifier used by Claim.
func WithVerifier(v Submitter) Option {
	return func(f *Flow) {
		f.verifier = v
	}
}

// WithHistory records every attempt in r.
func WithHistory(r Recorder) Option {
	return func(f *Flow) {
		f.history = r
	}
}

// WithChipVerification checks that the signature recovers to the address the
// chip reported before the attestation is returned.
func WithChipVerification() Option {
	return func(f *Flow) {
		f.verifySig = true
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		f.log = l
	}
}

// WithClock sets the time source for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// New creates a Flow.
func New(c chain.Client, sessions *session.Manager, opts ...Option) *Flow {
	f := &Flow{
		chain:    c,
		sessions: sessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// Prepare builds a challenge for the current account over the latest block.
// Both chain queries must succeed; there is no fallback checkpoint. Each call
// fetches a new block, so a retry after a rejection gets a fresh challenge.
func (f *Flow) Prepare(ctx context.Context) (attestation.Challenge, chain.Network, error) {
	account, err := f.chain.Account(ctx)
	if err != nil {
		return attestation.Challenge{}, chain.Network{}, fmt.Errorf("claim: account: %w", err)
	}
	network, err := f.chain.Network(ctx)
	if err != nil {
		return attestation.Challenge{}, chain.Network{}, fmt.Errorf("claim: network: %w", err)
	}
	cp, err := f.chain.Block(ctx)
	if err != nil {
		return attestation.Challenge{}, chain.Network{}, fmt.Errorf("claim: block: %w", err)
	}
	c, err := attestation.BuildChallenge(account, cp)
	if err != nil {
		return attestation.Challenge{}, chain.Network{}, err
	}
	return c, network, nil
}

// Sign prepares a challenge and has the chip at h sign it. A zero handle
// discovers the chip first.
func (f *Flow) Sign(ctx context.Context, h transport.PeripheralHandle) (*Result, error) {
	c, network, err := f.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{
		ClaimID:   uuid.New().String(),
		Network:   network,
		Challenge: c,
	}
	log := f.log.With("claim_id", res.ClaimID, "block", c.Checkpoint.Number)

	s, err := f.sessions.NewSession(h)
	if err != nil {
		return nil, err
	}
	res.SessionID = s.ID()
	defer s.Close()

	f.insert(log, &store.Claim{
		ID:           res.ClaimID,
		SessionID:    res.SessionID,
		PeripheralID: h.ID,
		Claimant:     c.Claimant.Hex(),
		ChainID:      network.ID,
		BlockNumber:  c.Checkpoint.Number,
		BlockHash:    c.Checkpoint.Hash.Hex(),
		CreatedAt:    f.now(),
	})

	att, err := s.Run(ctx, c)
	if err == nil && f.verifySig {
		err = att.VerifyChip()
	}
	if err != nil {
		f.update(log, res.ClaimID, store.ClaimUpdate{
			Outcome:      store.OutcomeFailed,
			Reason:       failureReason(err),
			PeripheralID: s.Handle().ID,
		})
		return res, err
	}

	res.Attestation = att
	f.update(log, res.ClaimID, store.ClaimUpdate{
		Outcome:      store.OutcomeSigned,
		PeripheralID: s.Handle().ID,
		ChipAddress:  att.ChipAddress.Hex(),
		Signature:    hexutil.Encode(att.Signature),
	})
	log.Info("claim signed", "chip", att.ChipAddress.Hex())
	return res, nil
}

// Claim signs a fresh challenge with the chip at h and redeems it.
func (f *Flow) Claim(ctx context.Context, h transport.PeripheralHandle) (*Result, error) {
	if f.verifier == nil {
		return nil, ErrNoVerifier
	}
	res, err := f.Sign(ctx, h)
	if err != nil {
		return res, err
	}
	log := f.log.With("claim_id", res.ClaimID)

	receipt, err := f.verifier.Submit(ctx, res.Attestation)
	res.Receipt = receipt
	switch {
	case err == nil:
		f.update(log, res.ClaimID, store.ClaimUpdate{Outcome: store.OutcomeRedeemed, TxHash: receipt.TxHash.Hex()})
		log.Info("claim redeemed", "tx", receipt.TxHash.Hex())
		return res, nil
	case errors.Is(err, verifier.ErrRejected):
		u := store.ClaimUpdate{Outcome: store.OutcomeRejected, Reason: failureReason(err)}
		if receipt != nil {
			u.TxHash = receipt.TxHash.Hex()
		}
		f.update(log, res.ClaimID, u)
	default:
		f.update(log, res.ClaimID, store.ClaimUpdate{Outcome: store.OutcomeAborted, Reason: failureReason(err)})
	}
	return res, err
}

func (f *Flow) insert(log *slog.Logger, c *store.Claim) {
	if f.history == nil {
		return
	}
	if err := f.history.InsertClaim(c); err != nil {
		log.Warn("claim not recorded", "error", err)
	}
}

func (f *Flow) update(log *slog.Logger, id string, u store.ClaimUpdate) {
	if f.history == nil {
		return
	}
	if err := f.history.UpdateClaim(id, u); err != nil {
		log.Warn("claim not recorded", "error", err)
	}
}

// failureReason is the short reason stored in history.
func failureReason(err error) string {
	var rejected *verifier.RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	if r := session.ReasonOf(err); r != "" {
		return string(r)
	}
	switch {
	case errors.Is(err, verifier.ErrUnreachable):
		return "verifier_unreachable"
	case errors.Is(err, verifier.ErrUserCancelled):
		return "user_cancelled"
	case errors.Is(err, verifier.ErrAlreadySubmitted):
		return "already_submitted"
	}
	if code := attestation.ErrorCode(err); code != "" {
		return code
	}
	return err.Error()
}
