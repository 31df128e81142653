package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xtools-at/esp5791/pkg/attestation"
)

// Receipt summarises a mined verifier transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// Contract is the verifier contract surface. Implementations return raw
// node errors; the Client classifies them.
type Contract interface {
	TransferTokenWithChip(ctx context.Context, signature []byte, blockNumber uint64, useSafeTransfer bool) (*Receipt, error)
	SeedChipToTokenMapping(ctx context.Context, chips []common.Address, tokenIDs []*big.Int) (*Receipt, error)
	UpdateChips(ctx context.Context, oldChips, newChips []common.Address) (*Receipt, error)
}

// Client submits attestations to a verifier contract.
type Client struct {
	contract Contract
	gate     *attestation.Gate
	breaker  *CircuitBreaker
	safe     bool
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	consumed map[common.Hash]struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithGate sets the freshness gate. Defaults to attestation.NewGate().
func WithGate(g *attestation.Gate) Option {
	return func(c *Client) {
		c.gate = g
	}
}

// WithBreaker sets the circuit breaker configuration.
func WithBreaker(cfg CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = NewCircuitBreaker(cfg)
	}
}

// WithSafeTransfer selects safeTransferFrom on the token side. Default true.
func WithSafeTransfer(safe bool) Option {
	return func(c *Client) {
		c.safe = safe
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithClock sets the time source used by the freshness pre-check and the
// breaker.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a Client bound to contract.
func NewClient(contract Contract, opts ...Option) *Client {
	c := &Client{
		contract: contract,
		safe:     true,
		now:      time.Now,
		consumed: make(map[common.Hash]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gate == nil {
		c.gate = attestation.NewGate()
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	}
	c.breaker.now = c.now
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Submit redeems att. An attestation is spent once it was accepted or
// rejected, or while a submission of it is in flight; submitting it again
// returns ErrAlreadySubmitted without contacting the verifier.
func (c *Client) Submit(ctx context.Context, att *attestation.Attestation) (*Receipt, error) {
	if att == nil {
		return nil, errors.New("verifier: nil attestation")
	}
	if err := att.Validate(); err != nil {
		return nil, err
	}
	id := att.ID()
	log := c.log.With("attestation", id.Hex(), "block", att.Checkpoint.Number)

	if !c.reserve(id) {
		return nil, ErrAlreadySubmitted
	}

	if err := c.gate.Check(att, c.now()); err != nil {
		log.Warn("attestation rejected locally", "reason", err.Error())
		return nil, &RejectedError{Reason: "stale checkpoint", Local: true, Err: err}
	}
	return c.transfer(ctx, log, id, att.Signature, att.Checkpoint.Number)
}

// Transfer redeems a signature captured earlier when only its block number
// is known. No local freshness check applies; the verifier enforces its own
// window. The spent-attestation rules of Submit apply.
func (c *Client) Transfer(ctx context.Context, signature []byte, blockNumber uint64) (*Receipt, error) {
	if len(signature) != attestation.SignatureSize {
		return nil, fmt.Errorf("verifier: signature must be %d bytes, got %d", attestation.SignatureSize, len(signature))
	}
	if blockNumber == 0 {
		return nil, errors.New("verifier: block number is required")
	}
	id := crypto.Keccak256Hash(signature)
	if !c.reserve(id) {
		return nil, ErrAlreadySubmitted
	}
	return c.transfer(ctx, c.log.With("attestation", id.Hex(), "block", blockNumber), id, signature, blockNumber)
}

func (c *Client) transfer(ctx context.Context, log *slog.Logger, id common.Hash, signature []byte, blockNumber uint64) (*Receipt, error) {
	var (
		receipt *Receipt
		callErr error
	)
	err := c.breaker.Execute(func() error {
		receipt, callErr = c.contract.TransferTokenWithChip(ctx, signature, blockNumber, c.safe)
		callErr = Classify(callErr)
		if errors.Is(callErr, ErrUnreachable) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		c.unreserve(id)
		log.Warn("verifier circuit open")
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	switch {
	case callErr == nil && !receipt.Succeeded():
		reason := "transaction reverted"
		if receipt == nil {
			reason = "no receipt"
		}
		log.Warn("attestation rejected", "reason", reason)
		return receipt, &RejectedError{Reason: reason}
	case callErr == nil:
		log.Info("attestation redeemed", "tx", receipt.TxHash.Hex())
		return receipt, nil
	case errors.Is(callErr, ErrRejected):
		log.Warn("attestation rejected", "error", callErr)
	default:
		// Nothing was decided; the same attestation may be submitted again.
		c.unreserve(id)
		log.Warn("attestation submit failed", "error", callErr)
	}
	return nil, callErr
}

// Seed maps chips to token IDs on the verifier. Both slices must be
// non-empty and of equal length.
func (c *Client) Seed(ctx context.Context, chips []common.Address, tokenIDs []*big.Int) (*Receipt, error) {
	if len(chips) == 0 {
		return nil, errors.New("verifier: no chips to seed")
	}
	if len(chips) != len(tokenIDs) {
		return nil, fmt.Errorf("verifier: %d chips but %d token IDs", len(chips), len(tokenIDs))
	}
	return c.admin(ctx, "chips seeded", func() (*Receipt, error) {
		return c.contract.SeedChipToTokenMapping(ctx, chips, tokenIDs)
	})
}

// UpdateChips replaces oldChips with newChips, pairwise.
func (c *Client) UpdateChips(ctx context.Context, oldChips, newChips []common.Address) (*Receipt, error) {
	if len(oldChips) == 0 {
		return nil, errors.New("verifier: no chips to update")
	}
	if len(oldChips) != len(newChips) {
		return nil, fmt.Errorf("verifier: %d old chips but %d new chips", len(oldChips), len(newChips))
	}
	return c.admin(ctx, "chips updated", func() (*Receipt, error) {
		return c.contract.UpdateChips(ctx, oldChips, newChips)
	})
}

func (c *Client) admin(ctx context.Context, event string, call func() (*Receipt, error)) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	receipt, err := call()
	if err != nil {
		return nil, Classify(err)
	}
	if !receipt.Succeeded() {
		return receipt, &RejectedError{Reason: "transaction reverted"}
	}
	c.log.Info(event, "tx", receipt.TxHash.Hex())
	return receipt, nil
}

// reserve marks id as spent. It reports false if it already was.
func (c *Client) reserve(id common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.consumed[id]; ok {
		return false
	}
	c.consumed[id] = struct{}{}
	return true
}

func (c *Client) unreserve(id common.Hash) {
	c.mu.Lock()
	delete(c.consumed, id)
	c.mu.Unlock()
}
