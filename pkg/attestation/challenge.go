package attestation

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// PayloadSize is the length of the unhashed challenge payload: a 20-byte
// address followed by a 32-byte block hash.
const PayloadSize = common.AddressLength + common.HashLength

// Challenge binds a claimant address to a checkpoint.
type Challenge struct {
	Claimant   common.Address
	Checkpoint Checkpoint
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, newError(ErrCodeInvalidAddress, "%q is not a 20-byte hex address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, newError(ErrCodeInvalidAddress, "zero address")
	}
	return addr, nil
}

// BuildChallenge returns the challenge for claimant at checkpoint. It is a
// pure function: equal inputs always yield an equal payload.
func BuildChallenge(claimant common.Address, cp Checkpoint) (Challenge, error) {
	if claimant == (common.Address{}) {
		return Challenge{}, newError(ErrCodeInvalidAddress, "claimant address is empty")
	}
	if err := cp.Validate(); err != nil {
		return Challenge{}, err
	}
	return Challenge{Claimant: claimant, Checkpoint: cp}, nil
}

// Payload returns claimant || block hash.
func (c Challenge) Payload() []byte {
	out := make([]byte, 0, PayloadSize)
	out = append(out, c.Claimant.Bytes()...)
	out = append(out, c.Checkpoint.Hash.Bytes()...)
	return out
}

// Text returns the payload as the 0x-prefixed lowercase hex text written to
// the chip.
func (c Challenge) Text() string {
	return hexutil.Encode(c.Payload())
}

// HashedPayload returns keccak256(payload), the form accepted by the hashed
// input characteristic.
func (c Challenge) HashedPayload() []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(c.Payload())
	return h.Sum(nil)
}

// DecodePayload splits a wire payload back into its address and block hash.
func DecodePayload(payload []byte) (common.Address, common.Hash, error) {
	if len(payload) != PayloadSize {
		return common.Address{}, common.Hash{}, newError(ErrCodeInvalidPayload, "payload must be %d bytes, got %d", PayloadSize, len(payload))
	}
	return common.BytesToAddress(payload[:common.AddressLength]),
		common.BytesToHash(payload[common.AddressLength:]), nil
}
