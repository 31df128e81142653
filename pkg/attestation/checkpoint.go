package attestation

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Checkpoint is a recent block captured from the chain. It is immutable once
// captured.
type Checkpoint struct {
	Number uint64
	Hash   common.Hash
	Time   time.Time // block timestamp
}

// NewCheckpoint validates hash and returns a checkpoint.
func NewCheckpoint(number uint64, hash []byte, blockTime time.Time) (Checkpoint, error) {
	if len(hash) != common.HashLength {
		return Checkpoint{}, newError(ErrCodeInvalidCheckpoint, "block hash must be %d bytes, got %d", common.HashLength, len(hash))
	}
	cp := Checkpoint{Number: number, Hash: common.BytesToHash(hash), Time: blockTime}
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// ParseCheckpoint builds a checkpoint from a hex block hash, with or without
// its 0x prefix.
func ParseCheckpoint(number uint64, hashHex string, blockTime time.Time) (Checkpoint, error) {
	s := strings.TrimSpace(hashHex)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	hash, err := hexutil.Decode("0x" + strings.ToLower(s[2:]))
	if err != nil {
		return Checkpoint{}, newError(ErrCodeInvalidCheckpoint, "block hash %q: %v", hashHex, err)
	}
	return NewCheckpoint(number, hash, blockTime)
}

// Validate rejects checkpoints without a block hash.
func (c Checkpoint) Validate() error {
	if c.Hash == (common.Hash{}) {
		return newError(ErrCodeInvalidCheckpoint, "block hash is empty")
	}
	return nil
}

// Age returns how old the checkpoint is at now.
func (c Checkpoint) Age(now time.Time) time.Duration {
	return now.Sub(c.Time)
}
