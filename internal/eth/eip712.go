package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// TypedDataDomainName scopes typed-data signatures to this protocol.
	TypedDataDomainName    = "SuperPool Authentication"
	TypedDataDomainVersion = "1"

	authPrimaryType = "SuperPoolAuth"
)

// DefaultChainID is assumed when the caller does not supply one.
var DefaultChainID = big.NewInt(1)

// AuthTypedData builds the EIP-712 payload a typed-data-capable wallet
// signs: the wallet, nonce and timestamp bound under the protocol domain.
func AuthTypedData(walletAddress, nonce string, timestampMillis int64, chainID *big.Int) apitypes.TypedData {
	if chainID == nil {
		chainID = DefaultChainID
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			authPrimaryType: {
				{Name: "wallet", Type: "address"},
				{Name: "nonce", Type: "string"},
				{Name: "timestamp", Type: "uint256"},
			},
		},
		PrimaryType: authPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    TypedDataDomainName,
			Version: TypedDataDomainVersion,
			ChainId: (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"wallet":    walletAddress,
			"nonce":     nonce,
			"timestamp": (*math.HexOrDecimal256)(big.NewInt(timestampMillis)),
		},
	}
}

// TypedDataDigest computes the EIP-712 signing digest:
// keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
func TypedDataDigest(typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return digest, nil
}

// RecoverTypedData recovers the signing address from an EIP-712
// signature over the given typed data.
func RecoverTypedData(typedData apitypes.TypedData, signature []byte) (common.Address, error) {
	digest, err := TypedDataDigest(typedData)
	if err != nil {
		return common.Address{}, err
	}
	return recoverAddress(digest, signature)
}
