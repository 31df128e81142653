package verifier

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/xtools-at/esp5791/pkg/chain"
)

// verifierABI covers the verifier entry points this client calls.
const verifierABI = `[
  {"type":"function","name":"transferTokenWithChip","stateMutability":"nonpayable","outputs":[],
   "inputs":[
     {"internalType":"bytes","name":"signatureFromChip","type":"bytes"},
     {"internalType":"uint256","name":"blockNumberUsedInSig","type":"uint256"},
     {"internalType":"bool","name":"useSafeTransferFrom","type":"bool"}]},
  {"type":"function","name":"seedChipToTokenMapping","stateMutability":"nonpayable","outputs":[],
   "inputs":[
     {"internalType":"address[]","name":"chipAddresses","type":"address[]"},
     {"internalType":"uint256[]","name":"tokenIds","type":"uint256[]"}]},
  {"type":"function","name":"updateChips","stateMutability":"nonpayable","outputs":[],
   "inputs":[
     {"internalType":"address[]","name":"chipAddressesOld","type":"address[]"},
     {"internalType":"address[]","name":"chipAddressesNew","type":"address[]"}]}
]`

// ParsedABI returns the verifier ABI.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(verifierABI))
}

// Backend is what EthContract needs from a node connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EthContract calls the verifier contract through a JSON-RPC node, signing
// transactions with a local key.
type EthContract struct {
	address common.Address
	backend Backend
	bound   *bind.BoundContract
	key     *ecdsa.PrivateKey
	chainID *big.Int
	log     *slog.Logger
	closer  func()
}

// NewEthContract binds the verifier at address.
func NewEthContract(address common.Address, backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, log *slog.Logger) (*EthContract, error) {
	if key == nil {
		return nil, errors.New("verifier: signing key required")
	}
	if chainID == nil {
		return nil, errors.New("verifier: chain ID required")
	}
	parsed, err := ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("parse verifier ABI: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &EthContract{
		address: address,
		backend: backend,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:     key,
		chainID: chainID,
		log:     log,
	}, nil
}

// DialContract connects to rpcURL and binds the verifier at address.
func DialContract(ctx context.Context, rpcURL string, address common.Address, key *ecdsa.PrivateKey, log *slog.Logger) (*EthContract, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrNodeUnavailable, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: chain id: %w", chain.ErrNodeUnavailable, err)
	}
	c, err := NewEthContract(address, client, key, chainID, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.closer = client.Close
	return c, nil
}

// Close releases the node connection if DialContract opened it.
func (c *EthContract) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Address returns the contract address.
func (c *EthContract) Address() common.Address {
	return c.address
}

// TransferTokenWithChip implements Contract.
func (c *EthContract) TransferTokenWithChip(ctx context.Context, signature []byte, blockNumber uint64, useSafeTransfer bool) (*Receipt, error) {
	return c.transact(ctx, "transferTokenWithChip", signature, new(big.Int).SetUint64(blockNumber), useSafeTransfer)
}

// SeedChipToTokenMapping implements Contract.
func (c *EthContract) SeedChipToTokenMapping(ctx context.Context, chips []common.Address, tokenIDs []*big.Int) (*Receipt, error) {
	return c.transact(ctx, "seedChipToTokenMapping", chips, tokenIDs)
}

// UpdateChips implements Contract.
func (c *EthContract) UpdateChips(ctx context.Context, oldChips, newChips []common.Address) (*Receipt, error) {
	return c.transact(ctx, "updateChips", oldChips, newChips)
}

// transact sends method and waits for it to be mined.
func (c *EthContract) transact(ctx context.Context, method string, args ...any) (*Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}
	c.log.Debug("verifier tx sent", "method", method, "tx", tx.Hash().Hex())

	rcpt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, err
	}
	r := &Receipt{
		TxHash:  rcpt.TxHash,
		GasUsed: rcpt.GasUsed,
		Status:  rcpt.Status,
	}
	if rcpt.BlockNumber != nil {
		r.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	return r, nil
}
