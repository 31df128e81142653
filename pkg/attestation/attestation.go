package attestation

import (
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureSize is the length of a recoverable secp256k1 signature.
const SignatureSize = crypto.SignatureLength

// Attestation is a chip signature over a challenge, produced once per
// successful chip session.
type Attestation struct {
	Signature   []byte
	Checkpoint  Checkpoint
	ChipAddress common.Address
	Claimant    common.Address

	// Optional values read from the chip after signing.
	PublicKey  []byte
	SignedHash []byte

	CapturedAt time.Time
}

// ID identifies the attestation by its signature. Two attestations with the
// same ID are the same proof.
func (a *Attestation) ID() common.Hash {
	return crypto.Keccak256Hash(a.Signature)
}

// Validate checks the attestation is complete enough to submit.
func (a *Attestation) Validate() error {
	if len(a.Signature) == 0 {
		return newError(ErrCodeInvalidSignature, "signature is empty")
	}
	return a.Checkpoint.Validate()
}

// Recover returns the address that signed challenge, using the same message
// framing as the verifier contract: an Ethereum signed message over
// keccak256(payload). V may be 0/1 or 27/28.
func Recover(c Challenge, sig []byte) (common.Address, error) {
	if len(sig) != SignatureSize {
		return common.Address{}, newError(ErrCodeInvalidSignature, "signature must be %d bytes, got %d", SignatureSize, len(sig))
	}
	normalized := make([]byte, SignatureSize)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash(crypto.Keccak256(c.Payload()))
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, newError(ErrCodeInvalidSignature, "recover signer: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyChip reports whether the attestation was signed by its chip for
// the claimant and checkpoint it carries.
func (a *Attestation) VerifyChip() error {
	c := Challenge{Claimant: a.Claimant, Checkpoint: a.Checkpoint}
	signer, err := Recover(c, a.Signature)
	if err != nil {
		return err
	}
	if signer != a.ChipAddress {
		return newError(ErrCodeInvalidSignature, "signed by %s, chip reports %s", signer.Hex(), a.ChipAddress.Hex())
	}
	return nil
}
