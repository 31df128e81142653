// Package attestation builds chip challenges and models the proximity
// attestations they produce.
//
// A chip proves it was near a claimant by signing a challenge that binds the
// claimant's wallet address to a recent block. The block is the Checkpoint;
// the signed result is the Attestation that a verifier contract redeems for a
// token transfer.
//
// # Components
//
//   - BuildChallenge: derives the 52-byte wire payload from an address and a checkpoint
//   - Checkpoint: a captured block number, hash and timestamp
//   - Attestation: the chip signature together with the checkpoint it covers
//   - Gate: rejects attestations whose checkpoint is older than the freshness bound
//
// # Wire Format
//
// The challenge payload is the 20-byte claimant address followed by the
// 32-byte block hash. Chips accept it as 0x-prefixed hex text on the input
// message characteristic, or its keccak256 digest on the hashed input
// characteristic. The chip signs keccak256(payload) as an Ethereum signed
// message, which is what the verifier contract recovers.
package attestation
