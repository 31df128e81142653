package cmd

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xtools-at/esp5791/internal/config"
	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/chain"
	"github.com/xtools-at/esp5791/pkg/transport"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

const (
	simChipID    = "SIM:57:91:00:00:01"
	simChipLabel = "ESP5791"
	simChainID   = 31337
)

// simAccount is the first Hardhat development account, used as claimant
// when no private key is configured.
var simAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// simulation replaces the radio, node and verifier for --simulate.
type simulation struct {
	chip     *transport.MockChip
	adapter  *transport.MockAdapter
	chain    *simChain
	contract *verifier.MockContract
}

func newSimulation(c *config.Config) (*simulation, error) {
	chip, err := transport.NewMockChip(simChipID, simChipLabel, transport.WithSignDelay(250*time.Millisecond))
	if err != nil {
		return nil, err
	}
	account := simAccount
	if key, err := c.Key(); err == nil {
		account = crypto.PubkeyToAddress(key.PublicKey)
	}
	return &simulation{
		chip:     chip,
		adapter:  transport.NewMockAdapter(transport.WithChips(chip)),
		chain:    &simChain{account: account, number: 1000},
		contract: verifier.NewMockContract(),
	}, nil
}

// simChain mines a block on every query.
type simChain struct {
	mu      sync.Mutex
	account common.Address
	number  uint64
}

func (c *simChain) Account(context.Context) (common.Address, error) {
	return c.account, nil
}

func (c *simChain) Block(context.Context) (attestation.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.number++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], c.number)
	return attestation.Checkpoint{
		Number: c.number,
		Hash:   crypto.Keccak256Hash([]byte("simulated block"), buf[:]),
		Time:   time.Now(),
	}, nil
}

func (c *simChain) Network(context.Context) (chain.Network, error) {
	return chain.Network{ID: simChainID, Name: chain.NetworkName(simChainID)}, nil
}
