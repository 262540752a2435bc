package ports

import (
	"context"
	"time"

	"github.com/superpool/walletauth/core"
)

// NonceStore holds pending authentication nonces keyed by wallet
// address (lower-cased). One outstanding nonce per address: Put
// overwrites unconditionally.
type NonceStore interface {
	// Put stores the record for the address, replacing any prior one.
	Put(ctx context.Context, walletAddress string, record *core.NonceRecord) error

	// Get returns the record for the address, or (nil, nil) when absent.
	Get(ctx context.Context, walletAddress string) (*core.NonceRecord, error)

	// Delete removes the record if present. The bool reports whether a
	// record was actually removed, so concurrent consumers can tell who
	// won. Idempotent.
	Delete(ctx context.Context, walletAddress string) (bool, error)
}

// UserStore persists user profiles keyed by wallet address (lower-cased).
type UserStore interface {
	GetUser(ctx context.Context, walletAddress string) (*core.UserProfile, error)
	PutUser(ctx context.Context, profile *core.UserProfile) error
}

// DeviceStore persists approved-device records keyed by device id.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*core.DeviceApproval, error)
	PutDevice(ctx context.Context, approval *core.DeviceApproval) error
}

// Store interface for token invalidation
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
