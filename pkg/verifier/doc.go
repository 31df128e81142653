// Package verifier redeems attestations against the on-chain verifier
// contract.
//
// A Client wraps a Contract (EthContract in production, MockContract in
// tests) and adds the local freshness pre-check, single-use tracking of
// attestations and a circuit breaker around an unreachable node. Failures
// come back as one of three classes:
//
//   - ErrUnreachable: the node could not be reached; nothing was decided.
//   - *RejectedError (matches ErrRejected): the contract refused. Reason is
//     passed through as the contract reported it.
//   - ErrUserCancelled: the caller or signer aborted.
//
// Nothing is retried. A rejected attestation is spent; the caller builds a
// new challenge over a fresh checkpoint.
package verifier
