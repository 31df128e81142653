package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/xtools-at/esp5791/pkg/attestation"
)

// Chain query errors.
var (
	ErrNoAccount = errors.New("chain: no account configured")
	ErrNoBlock   = errors.New("chain: node returned no block")
)

// Client is the chain query surface used by claims.
type Client interface {
	// Account returns the claimant account.
	Account(ctx context.Context) (common.Address, error)

	// Block returns the latest block as a checkpoint.
	Block(ctx context.Context) (attestation.Checkpoint, error)

	// Network returns the connected chain.
	Network(ctx context.Context) (Network, error)
}

// HeaderReader is the subset of ethclient.Client used by EthClient.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// EthClient answers chain queries from a JSON-RPC node.
type EthClient struct {
	reader  HeaderReader
	account common.Address
	retry   RetryConfig
	log     *slog.Logger
	closer  func()
}

// Option configures an EthClient.
type Option func(*EthClient)

// WithAccount sets the claimant account.
func WithAccount(addr common.Address) Option {
	return func(c *EthClient) {
		c.account = addr
	}
}

// WithKey derives the claimant account from key.
func WithKey(key *ecdsa.PrivateKey) Option {
	return func(c *EthClient) {
		if key != nil {
			c.account = crypto.PubkeyToAddress(key.PublicKey)
		}
	}
}

// WithRetry overrides the backoff used for node queries.
func WithRetry(cfg RetryConfig) Option {
	return func(c *EthClient) {
		c.retry = cfg
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *EthClient) {
		c.log = l
	}
}

// NewEthClient wraps an existing header reader.
func NewEthClient(reader HeaderReader, opts ...Option) *EthClient {
	c := &EthClient{
		reader: reader,
		retry:  DefaultRetryConfig(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the node at rawURL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*EthClient, error) {
	ec, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNodeUnavailable, rawURL, err)
	}
	c := NewEthClient(ec, opts...)
	c.closer = ec.Close
	return c, nil
}

// Close releases the node connection.
func (c *EthClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Account returns the configured claimant account.
func (c *EthClient) Account(ctx context.Context) (common.Address, error) {
	if c.account == (common.Address{}) {
		return common.Address{}, ErrNoAccount
	}
	return c.account, nil
}

// Block fetches the latest header.
func (c *EthClient) Block(ctx context.Context) (attestation.Checkpoint, error) {
	var header *types.Header
	err := Retry(ctx, c.retry, func() error {
		var err error
		header, err = c.reader.HeaderByNumber(ctx, nil)
		if err != nil {
			c.log.Debug("header query failed", "error", err)
		}
		return err
	})
	if err != nil {
		return attestation.Checkpoint{}, fmt.Errorf("latest block: %w", err)
	}
	if header == nil || header.Number == nil {
		return attestation.Checkpoint{}, ErrNoBlock
	}

	cp := attestation.Checkpoint{
		Number: header.Number.Uint64(),
		Hash:   header.Hash(),
		Time:   time.Unix(int64(header.Time), 0),
	}
	if err := cp.Validate(); err != nil {
		return attestation.Checkpoint{}, fmt.Errorf("%w: %v", ErrNoBlock, err)
	}
	return cp, nil
}

// Network fetches the chain ID.
func (c *EthClient) Network(ctx context.Context) (Network, error) {
	var id *big.Int
	err := Retry(ctx, c.retry, func() error {
		var err error
		id, err = c.reader.ChainID(ctx)
		return err
	})
	if err != nil {
		return Network{}, fmt.Errorf("chain id: %w", err)
	}
	return Network{ID: id.Uint64(), Name: NetworkName(id.Uint64())}, nil
}

// claimantOverride answers Account with a fixed address and forwards the
// rest to the wrapped client.
type claimantOverride struct {
	Client
	account common.Address
}

// WithClaimant returns c with Account pinned to addr. A zero addr returns c
// unchanged.
func WithClaimant(c Client, addr common.Address) Client {
	if addr == (common.Address{}) {
		return c
	}
	return &claimantOverride{Client: c, account: addr}
}

func (o *claimantOverride) Account(context.Context) (common.Address, error) {
	return o.account, nil
}
