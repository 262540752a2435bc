package client

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable capture of wallet-connection facts at a
// point in time. Sequence numbers give a total order over observed
// connection states within one client process.
type Snapshot struct {
	IsConnected bool
	Address     string // empty when no account is exposed
	ChainID     int64  // 0 when no chain is known
	Timestamp   time.Time
	Sequence    uint64
}

// Snapshotter assigns strictly increasing sequence numbers to
// snapshots. The counter is the only mutable state; snapshots
// themselves are values and never change after capture.
type Snapshotter struct {
	seq atomic.Uint64
}

// NewSnapshotter creates a snapshotter whose first capture gets
// sequence number 1.
func NewSnapshotter() *Snapshotter {
	return &Snapshotter{}
}

// Capture records the current connection facts under the next
// sequence number.
func (s *Snapshotter) Capture(isConnected bool, address string, chainID int64) Snapshot {
	return Snapshot{
		IsConnected: isConnected,
		Address:     address,
		ChainID:     chainID,
		Timestamp:   time.Now(),
		Sequence:    s.seq.Add(1),
	}
}

// ResetSequence resets the counter to 0, so the next capture gets
// sequence 1 again. Test and lifecycle hook.
func (s *Snapshotter) ResetSequence() {
	s.seq.Store(0)
}

// IsConsistent reports whether the candidate snapshot observed the same
// connection as the reference: connection flag, address and chain id
// all equal, and the candidate not ordered before the reference.
func IsConsistent(reference, candidate Snapshot) bool {
	return reference.IsConnected == candidate.IsConnected &&
		strings.EqualFold(reference.Address, candidate.Address) &&
		reference.ChainID == candidate.ChainID &&
		candidate.Sequence >= reference.Sequence
}

// ValidateForAuthStart is the entry gate before an authentication
// attempt: the wallet must be connected, expose an address matching the
// claimed one, and report a chain.
func ValidateForAuthStart(snapshot Snapshot, claimedWalletAddress string) error {
	if !snapshot.IsConnected {
		return fmt.Errorf("wallet is not connected")
	}
	if snapshot.Address == "" {
		return fmt.Errorf("wallet exposes no address")
	}
	if !strings.EqualFold(snapshot.Address, claimedWalletAddress) {
		return fmt.Errorf("connected address %s does not match claimed address %s", snapshot.Address, claimedWalletAddress)
	}
	if snapshot.ChainID == 0 {
		return fmt.Errorf("wallet reports no chain id")
	}
	return nil
}
