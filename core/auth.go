package core

import "time"

// NonceRecord is the server-held expectation for one pending authentication.
// At most one record exists per wallet address; issuing a new message
// replaces any prior record wholesale.
type NonceRecord struct {
	Nonce     string    `json:"nonce"`     // Opaque random token embedded in the message
	IssuedAt  time.Time `json:"issuedAt"`  // When the message was generated
	ExpiresAt time.Time `json:"expiresAt"` // Anti-replay bound; expired records are treated as absent
}

// Expired reports whether the record is past its expiry at the given instant.
func (r *NonceRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// UserProfile is the per-wallet account record, keyed by lower-cased address.
type UserProfile struct {
	WalletAddress string    `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"` // Immutable after first write
	UpdatedAt     time.Time `json:"updatedAt"` // Advances on every successful login
}

// DeviceApproval marks a device as trusted for app-check token minting.
type DeviceApproval struct {
	DeviceID      string    `json:"deviceId"`
	WalletAddress string    `json:"walletAddress"`
	ApprovedAt    time.Time `json:"approvedAt"`
	Platform      string    `json:"platform"`
	LastUsed      time.Time `json:"lastUsed"`
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier
	Address       string    // Wallet address of the user
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// LoginResult is returned by a successful signature verification and login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}
