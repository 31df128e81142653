// Package chain answers the three chain queries a claim needs: the claimant
// account, the latest block, and the connected network.
//
// EthClient talks to any JSON-RPC node through go-ethereum's ethclient.
// Read-only queries are retried with exponential backoff when the node is
// rate limiting or briefly unreachable; see Retry and IsRetryable.
package chain
