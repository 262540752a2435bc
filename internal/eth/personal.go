package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PersonalSignHash returns the EIP-191 digest of a personal_sign message:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalSignHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverPersonalSign recovers the signing address from a personal_sign
// signature over the given message.
func RecoverPersonalSign(message string, signature []byte) (common.Address, error) {
	return recoverAddress(PersonalSignHash(message), signature)
}

// DecodeSignature decodes a 0x-prefixed hex ECDSA signature and checks
// its length. Wallets emit 65 bytes: R (32) | S (32) | V (1).
func DecodeSignature(signatureHex string) ([]byte, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	return sig, nil
}

// recoverAddress runs ECDSA public key recovery against a 32-byte digest.
// The recovery id is normalized from the 27/28 convention to 0/1.
func recoverAddress(digest, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
