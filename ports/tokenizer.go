package ports

import (
	"time"

	"github.com/superpool/walletauth/core"
)

// Tokenizer converts between domain objects and signed tokens
type Tokenizer interface {
	// Session token operations
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)

	// MintAppCheckToken issues a short-lived device-attestation token
	// for an approved device. Returns the token and its expiry instant.
	MintAppCheckToken(deviceID string, ttl time.Duration) (string, time.Time, error)
}
