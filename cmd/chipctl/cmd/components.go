package cmd

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xtools-at/esp5791/pkg/chain"
	"github.com/xtools-at/esp5791/pkg/claim"
	"github.com/xtools-at/esp5791/pkg/clierror"
	"github.com/xtools-at/esp5791/pkg/session"
	"github.com/xtools-at/esp5791/pkg/transport"
	"github.com/xtools-at/esp5791/pkg/verifier"
)

// openAdapter returns the radio adapter: the simulated one under
// --simulate, otherwise the host BLE radio.
func openAdapter() (transport.Adapter, error) {
	if sim != nil {
		return sim.adapter, nil
	}
	return transport.NewAdapter(&transport.Config{Logger: logger})
}

// openScanner returns the advertisement source for scans.
func openScanner() (transport.Scanner, error) {
	a, err := openAdapter()
	if err != nil {
		return nil, err
	}
	s, ok := a.(transport.Scanner)
	if !ok {
		return nil, clierror.Unsupported(string(a.Type()) + " adapter cannot scan")
	}
	return s, nil
}

// openChain connects to the configured node.
func openChain(ctx context.Context) (chain.Client, func(), error) {
	if sim != nil {
		return sim.chain, func() {}, nil
	}
	if err := cfg.RequireRPC(); err != nil {
		return nil, nil, clierror.InvalidConfig(err.Error())
	}
	base := []chain.Option{chain.WithLogger(logger)}
	if key, err := cfg.Key(); err == nil {
		base = append(base, chain.WithKey(key))
	}
	c, err := chain.Dial(ctx, cfg.RPCURL, base...)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// openVerifier binds the verifier contract. Transactions need the private key.
func openVerifier(ctx context.Context) (*verifier.Client, func(), error) {
	opts := []verifier.Option{
		verifier.WithGate(cfg.Gate()),
		verifier.WithSafeTransfer(cfg.SafeTransfer),
		verifier.WithLogger(logger),
	}
	if sim != nil {
		return verifier.NewClient(sim.contract, opts...), func() {}, nil
	}
	if err := cfg.RequireRPC(); err != nil {
		return nil, nil, clierror.InvalidConfig(err.Error())
	}
	address, err := cfg.ContractAddress()
	if err != nil {
		return nil, nil, clierror.InvalidConfig(err.Error())
	}
	key, err := cfg.Key()
	if err != nil {
		return nil, nil, clierror.InvalidConfig(err.Error())
	}
	contract, err := verifier.DialContract(ctx, cfg.RPCURL, address, key, logger)
	if err != nil {
		return nil, nil, err
	}
	return verifier.NewClient(contract, opts...), contract.Close, nil
}

// openFlow wires a claim flow with history recording. A non-zero account
// overrides the claimant derived from the private key.
func openFlow(ctx context.Context, withVerifier bool, account common.Address) (*claim.Flow, func(), error) {
	adapter, err := openAdapter()
	if err != nil {
		return nil, nil, err
	}
	mgr, err := session.NewManager(adapter, session.WithConfig(cfg.SessionConfig()), session.WithLogger(logger))
	if err != nil {
		return nil, nil, clierror.InvalidConfig(err.Error())
	}
	client, closeChain, err := openChain(ctx)
	if err != nil {
		return nil, nil, err
	}
	client = chain.WithClaimant(client, account)
	opts := []claim.Option{
		claim.WithHistory(historyStore),
		claim.WithChipVerification(),
		claim.WithLogger(logger),
	}
	closeAll := closeChain
	if withVerifier {
		v, closeVerifier, err := openVerifier(ctx)
		if err != nil {
			closeChain()
			return nil, nil, err
		}
		opts = append(opts, claim.WithVerifier(v))
		closeAll = func() {
			closeVerifier()
			closeChain()
		}
	}
	return claim.New(client, mgr, opts...), closeAll, nil
}
