package eth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/superpool/walletauth/ports"
)

// safeContractABI covers the two read-only entry points verification
// needs: EIP-1271 signature validation and the Safe version probe.
const safeContractABI = `[
	{"constant":true,"inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"","type":"bytes4"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"VERSION","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// erc1271MagicValue is returned by isValidSignature(bytes32,bytes) on success.
var erc1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

var safeABI = mustParseABI(safeContractABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid safe contract ABI: %v", err))
	}
	return parsed
}

// SafeVerification is the structured outcome of a Safe wallet
// signature check. Warnings are surfaced for observability but never
// block an otherwise valid result.
type SafeVerification struct {
	Valid             bool
	ContractDeployed  bool
	SignatureChecked  bool
	VersionCompatible bool
	Version           string
	Warnings          []string
	Err               error
}

// VerifySafeSignature checks a smart-contract wallet signature against
// the Safe deployed at safeAddress: the contract must exist on chain,
// satisfy its owner threshold for the digest via EIP-1271, and must
// not report a contract version outside the supported 1.x line.
//
// The returned error is non-nil only for infrastructure failures
// (provider unreachable). Protocol-level rejection is reported through
// SafeVerification.Err with Valid == false.
func VerifySafeSignature(
	ctx context.Context,
	caller ports.ChainCaller,
	safeAddress common.Address,
	digest [32]byte,
	signature []byte,
) (*SafeVerification, error) {
	result := &SafeVerification{}

	if len(signature) == 0 {
		result.Err = fmt.Errorf("empty safe signature payload")
		return result, nil
	}

	code, err := caller.CodeAt(ctx, safeAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contract code: %w", err)
	}
	if len(code) == 0 {
		result.Err = fmt.Errorf("no contract deployed at %s", safeAddress.Hex())
		return result, nil
	}
	result.ContractDeployed = true

	input, err := safeABI.Pack("isValidSignature", digest, signature)
	if err != nil {
		result.Err = fmt.Errorf("failed to encode isValidSignature call: %w", err)
		return result, nil
	}

	output, err := caller.CallContract(ctx, safeAddress, input)
	if err != nil {
		// A reverting call is how EIP-1271 contracts reject signatures.
		result.SignatureChecked = true
		result.Err = fmt.Errorf("contract rejected signature: %w", err)
		return result, nil
	}
	result.SignatureChecked = true

	var magic [4]byte
	if err := safeABI.UnpackIntoInterface(&magic, "isValidSignature", output); err != nil {
		result.Err = fmt.Errorf("failed to decode isValidSignature result: %w", err)
		return result, nil
	}
	if magic != erc1271MagicValue {
		result.Err = fmt.Errorf("contract returned non-magic value %x", magic)
		return result, nil
	}

	result.Version, result.VersionCompatible = probeSafeVersion(ctx, caller, safeAddress, result)

	// A version that was read successfully and falls outside the
	// supported major line is a hard rejection. An unreadable version
	// only warns: the owner threshold was already proven via EIP-1271.
	if result.Version != "" && !result.VersionCompatible {
		result.Err = fmt.Errorf("unsupported safe contract version %q", result.Version)
		return result, nil
	}

	result.Valid = true
	return result, nil
}

// probeSafeVersion fetches the Safe's VERSION() and checks it against
// the supported major line. Probe failures degrade to warnings.
func probeSafeVersion(ctx context.Context, caller ports.ChainCaller, safeAddress common.Address, result *SafeVerification) (string, bool) {
	input, err := safeABI.Pack("VERSION")
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to encode VERSION call: %v", err))
		return "", false
	}

	output, err := caller.CallContract(ctx, safeAddress, input)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to read safe version: %v", err))
		return "", false
	}

	var version string
	if err := safeABI.UnpackIntoInterface(&version, "VERSION", output); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to decode safe version: %v", err))
		return "", false
	}

	if !strings.HasPrefix(version, "1.") {
		return version, false
	}
	return version, true
}
