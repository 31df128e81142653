package verifier

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// revertCode is the JSON-RPC error code nodes use for execution reverts.
const revertCode = 3

// revertSelector is the selector of Error(string).
var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// RevertError builds the error a node returns when a call reverts with
// reason: an rpc.DataError whose data is the ABI-encoded Error(string).
func RevertError(reason string) error {
	strType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: strType}}.Pack(reason)
	data := append(append([]byte{}, revertSelector...), packed...)
	return &revertError{reason: reason, data: hexutil.Encode(data)}
}

type revertError struct {
	reason string
	data   string
}

func (e *revertError) Error() string          { return "execution reverted: " + e.reason }
func (e *revertError) ErrorCode() int         { return revertCode }
func (e *revertError) ErrorData() interface{} { return e.data }

// TransferCall records one TransferTokenWithChip call.
type TransferCall struct {
	Signature       []byte
	BlockNumber     uint64
	UseSafeTransfer bool
}

// SeedCall records one SeedChipToTokenMapping call.
type SeedCall struct {
	Chips    []common.Address
	TokenIDs []*big.Int
}

// UpdateCall records one UpdateChips call.
type UpdateCall struct {
	Old []common.Address
	New []common.Address
}

// MockContract is an in-memory verifier for tests and simulation. It records
// calls and returns configured errors.
type MockContract struct {
	mu sync.Mutex

	transferErr error
	adminErr    error
	status      uint64
	block       uint64

	transfers []TransferCall
	seeds     []SeedCall
	updates   []UpdateCall
	tokens    map[common.Address]*big.Int
}

// MockContractOption configures a MockContract.
type MockContractOption func(*MockContract)

// WithTransferError makes TransferTokenWithChip fail with err.
func WithTransferError(err error) MockContractOption {
	return func(m *MockContract) {
		m.transferErr = err
	}
}

// WithRevert makes TransferTokenWithChip revert with reason.
func WithRevert(reason string) MockContractOption {
	return WithTransferError(RevertError(reason))
}

// WithAdminError makes seed and update calls fail with err.
func WithAdminError(err error) MockContractOption {
	return func(m *MockContract) {
		m.adminErr = err
	}
}

// WithReceiptStatus sets the status of returned receipts. Default 1.
func WithReceiptStatus(status uint64) MockContractOption {
	return func(m *MockContract) {
		m.status = status
	}
}

// NewMockContract creates a mock verifier.
func NewMockContract(opts ...MockContractOption) *MockContract {
	m := &MockContract{
		status: 1,
		block:  1,
		tokens: make(map[common.Address]*big.Int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TransferTokenWithChip implements Contract.
func (m *MockContract) TransferTokenWithChip(ctx context.Context, signature []byte, blockNumber uint64, useSafeTransfer bool) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transfers = append(m.transfers, TransferCall{
		Signature:       append([]byte(nil), signature...),
		BlockNumber:     blockNumber,
		UseSafeTransfer: useSafeTransfer,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.transferErr != nil {
		return nil, m.transferErr
	}
	return m.receiptLocked(signature), nil
}

// SeedChipToTokenMapping implements Contract.
func (m *MockContract) SeedChipToTokenMapping(ctx context.Context, chips []common.Address, tokenIDs []*big.Int) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seeds = append(m.seeds, SeedCall{Chips: chips, TokenIDs: tokenIDs})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.adminErr != nil {
		return nil, m.adminErr
	}
	for i, chip := range chips {
		m.tokens[chip] = tokenIDs[i]
	}
	return m.receiptLocked(chips[0].Bytes()), nil
}

// UpdateChips implements Contract.
func (m *MockContract) UpdateChips(ctx context.Context, oldChips, newChips []common.Address) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates = append(m.updates, UpdateCall{Old: oldChips, New: newChips})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.adminErr != nil {
		return nil, m.adminErr
	}
	for i, old := range oldChips {
		if id, ok := m.tokens[old]; ok {
			delete(m.tokens, old)
			m.tokens[newChips[i]] = id
		}
	}
	return m.receiptLocked(newChips[0].Bytes()), nil
}

// receiptLocked returns a receipt for the next mock block.
// Must be called with mu held.
func (m *MockContract) receiptLocked(seed []byte) *Receipt {
	m.block++
	return &Receipt{
		TxHash:      crypto.Keccak256Hash(seed, new(big.Int).SetUint64(m.block).Bytes()),
		BlockNumber: m.block,
		GasUsed:     21000,
		Status:      m.status,
	}
}

// SetTransferError changes the error returned by TransferTokenWithChip.
func (m *MockContract) SetTransferError(err error) {
	m.mu.Lock()
	m.transferErr = err
	m.mu.Unlock()
}

// Transfers returns a copy of recorded transfer calls.
func (m *MockContract) Transfers() []TransferCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransferCall(nil), m.transfers...)
}

// Seeds returns a copy of recorded seed calls.
func (m *MockContract) Seeds() []SeedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SeedCall(nil), m.seeds...)
}

// Updates returns a copy of recorded update calls.
func (m *MockContract) Updates() []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UpdateCall(nil), m.updates...)
}

// TokenOf returns the token seeded for chip.
func (m *MockContract) TokenOf(chip common.Address) (*big.Int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[chip]
	return id, ok
}
