package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/superpool/walletauth/core"
	"github.com/superpool/walletauth/ports"
)

// SignatureType selects the verification mode. The kind is declared
// explicitly by the caller rather than sniffed from the payload.
type SignatureType string

const (
	SignaturePersonalSign SignatureType = "personal-sign"
	SignatureTypedData    SignatureType = "typed-data"
	SignatureSafeWallet   SignatureType = "safe-wallet"
)

// ParseSignatureType maps a wire value to a SignatureType, defaulting
// to personal-sign for backward compatibility with older clients.
func ParseSignatureType(s string) (SignatureType, error) {
	switch s {
	case "", string(SignaturePersonalSign):
		return SignaturePersonalSign, nil
	case string(SignatureTypedData):
		return SignatureTypedData, nil
	case string(SignatureSafeWallet):
		return SignatureSafeWallet, nil
	default:
		return "", fmt.Errorf("unknown signature type %q", s)
	}
}

// VerifyRequest carries everything needed to check one signature
// against a reconstructed authentication message.
type VerifyRequest struct {
	Type            SignatureType
	WalletAddress   string
	Message         string // Formatted auth message (personal-sign and safe-wallet)
	Nonce           string // Typed-data schema fields
	TimestampMillis int64
	Signature       string   // 0x-prefixed hex
	ChainID         *big.Int // nil defaults per mode
}

// Verifier validates wallet signatures in all three modes. It holds no
// per-request state; the chain registry is consulted only for
// smart-contract wallets.
type Verifier struct {
	chains ports.ChainRegistry
	logger *zap.Logger
}

func NewVerifier(chains ports.ChainRegistry, logger *zap.Logger) *Verifier {
	return &Verifier{chains: chains, logger: logger}
}

// Verify checks the signature and that the proven signer matches the
// claimed wallet address. Failure modes are distinct:
// core.ErrInvalidSignature for malformed or unrecoverable signatures,
// core.ErrAddressMismatch when a valid signature proves a different
// address, and core.ErrSafeVerificationFailed for contract rejection.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) error {
	switch req.Type {
	case SignaturePersonalSign:
		return v.verifyRecovered(req, func(sig []byte) (common.Address, error) {
			return RecoverPersonalSign(req.Message, sig)
		})
	case SignatureTypedData:
		return v.verifyRecovered(req, func(sig []byte) (common.Address, error) {
			typedData := AuthTypedData(req.WalletAddress, req.Nonce, req.TimestampMillis, req.ChainID)
			return RecoverTypedData(typedData, sig)
		})
	case SignatureSafeWallet:
		return v.verifySafe(ctx, req)
	default:
		return core.WrapError(core.CodeInvalidArgument, "unknown signature type", fmt.Errorf("%q", req.Type))
	}
}

func (v *Verifier) verifyRecovered(req VerifyRequest, recover func([]byte) (common.Address, error)) error {
	sig, err := DecodeSignature(req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	recovered, err := recover(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}

	if !strings.EqualFold(recovered.Hex(), req.WalletAddress) {
		return core.ErrAddressMismatch
	}
	return nil
}

func (v *Verifier) verifySafe(ctx context.Context, req VerifyRequest) error {
	chainID := req.ChainID
	if chainID == nil {
		chainID = DefaultChainID
	}

	caller, err := v.chains.Caller(chainID)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSafeVerificationFailed, err)
	}

	sig, err := decodeSafePayload(req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSafeVerificationFailed, err)
	}

	var digest [32]byte
	copy(digest[:], PersonalSignHash(req.Message))

	safeAddress := common.HexToAddress(req.WalletAddress)
	result, err := VerifySafeSignature(ctx, caller, safeAddress, digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSafeVerificationFailed, err)
	}

	for _, warning := range result.Warnings {
		v.logger.Warn("safe verification warning",
			zap.String("address", req.WalletAddress),
			zap.String("warning", warning),
		)
	}

	if !result.Valid {
		return fmt.Errorf("%w: %v", core.ErrSafeVerificationFailed, result.Err)
	}
	return nil
}

// decodeSafePayload decodes the contract-signature blob. Safe
// signatures are variable-length (one 65-byte segment per owner plus
// optional dynamic parts), so only hex validity and non-emptiness are
// checked here; the contract enforces the threshold.
func decodeSafePayload(signatureHex string) ([]byte, error) {
	if signatureHex == "" {
		return nil, fmt.Errorf("empty signature payload")
	}
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("signature payload is not valid hex: %w", err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("empty signature payload")
	}
	return sig, nil
}
