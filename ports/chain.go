package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainCaller is the read-only on-chain surface needed to verify
// smart-contract wallet signatures.
type ChainCaller interface {
	// CodeAt returns the contract bytecode at the address, or empty when
	// no contract is deployed there.
	CodeAt(ctx context.Context, contract common.Address) ([]byte, error)

	// CallContract executes a read-only call against the contract.
	CallContract(ctx context.Context, contract common.Address, data []byte) ([]byte, error)
}

// ChainRegistry resolves a ChainCaller for a chain id.
type ChainRegistry interface {
	// Caller returns the caller for the chain, or an error when the
	// chain is not configured.
	Caller(chainID *big.Int) (ChainCaller, error)
}
