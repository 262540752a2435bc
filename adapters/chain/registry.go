package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/superpool/walletauth/ports"
)

// Registry maps chain ids to RPC-backed callers. It is populated once
// at startup from configuration and read-only afterwards.
type Registry struct {
	callers map[uint64]ports.ChainCaller
}

// NewRegistry dials an ethclient for every configured chain.
func NewRegistry(rpcURLs map[uint64]string) (*Registry, error) {
	callers := make(map[uint64]ports.ChainCaller, len(rpcURLs))
	for chainID, url := range rpcURLs {
		client, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("failed to dial chain %d at %s: %w", chainID, url, err)
		}
		callers[chainID] = &ethCaller{client: client}
	}
	return &Registry{callers: callers}, nil
}

// NewRegistryWithCallers builds a registry from pre-built callers,
// used by tests to inject fakes.
func NewRegistryWithCallers(callers map[uint64]ports.ChainCaller) *Registry {
	return &Registry{callers: callers}
}

// Caller returns the caller for the chain, or an error when the chain
// is not configured.
func (r *Registry) Caller(chainID *big.Int) (ports.ChainCaller, error) {
	if chainID == nil || !chainID.IsUint64() {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}
	caller, ok := r.callers[chainID.Uint64()]
	if !ok {
		return nil, fmt.Errorf("no provider configured for chain %d", chainID.Uint64())
	}
	return caller, nil
}

// ethCaller adapts ethclient to the ChainCaller port.
type ethCaller struct {
	client *ethclient.Client
}

func (c *ethCaller) CodeAt(ctx context.Context, contract common.Address) ([]byte, error) {
	return c.client.CodeAt(ctx, contract, nil)
}

func (c *ethCaller) CallContract(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &contract, Data: data}
	return c.client.CallContract(ctx, msg, nil)
}
