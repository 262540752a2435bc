package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims are just the standard claims for refresh tokens
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// AppCheckClaims are the standard claims for device-attestation tokens;
// the device id travels as the subject.
type AppCheckClaims struct {
	jwt.RegisteredClaims
}
