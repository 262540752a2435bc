package core

import "fmt"

// authMessageTemplate is the wire contract shared with every client.
// The verifier reconstructs the message from the stored nonce, so any
// change here invalidates every in-flight authentication.
const authMessageTemplate = `Welcome to SuperPool!

This request will not trigger a blockchain transaction.

Wallet address:
%s

Nonce:
%s
Timestamp:
%d`

// FormatAuthMessage renders the human-readable authentication message
// for the given wallet address, nonce and millisecond timestamp. It is
// pure and deterministic: the same inputs always produce byte-identical
// output, with no locale or timezone dependence.
func FormatAuthMessage(walletAddress, nonce string, timestampMillis int64) string {
	return fmt.Sprintf(authMessageTemplate, walletAddress, nonce, timestampMillis)
}
