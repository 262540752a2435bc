package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superpool/walletauth/core"
	"github.com/superpool/walletauth/internal/eth"
	"github.com/superpool/walletauth/ports"
)

const (
	// DefaultNonceTTL bounds the replay window. Ten minutes tolerates
	// mobile wallet-app switching without leaving stale nonces around.
	DefaultNonceTTL = 10 * time.Minute

	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 5 * 24 * time.Hour
)

// SignatureChecker verifies a wallet signature request. Satisfied by
// *eth.Verifier; tests substitute fakes.
type SignatureChecker interface {
	Verify(ctx context.Context, req eth.VerifyRequest) error
}

// AuthService orchestrates the wallet-signature authentication
// protocol: nonce issuance, signature verification and session token
// issuance, plus session refresh and logout.
type AuthService struct {
	nonces      ports.NonceStore
	users       ports.UserStore
	devices     ports.DeviceStore
	invalidated ports.Store
	tokenizer   ports.Tokenizer
	verifier    SignatureChecker
	eventPub    ports.EventPublisher
	logger      *zap.Logger

	nonceTTL   time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Deps bundles the collaborators of an AuthService.
type Deps struct {
	Nonces      ports.NonceStore
	Users       ports.UserStore
	Devices     ports.DeviceStore
	Invalidated ports.Store
	Tokenizer   ports.Tokenizer
	Verifier    SignatureChecker
	EventPub    ports.EventPublisher
	Logger      *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Deps) *AuthService {
	return &AuthService{
		nonces:      deps.Nonces,
		users:       deps.Users,
		devices:     deps.Devices,
		invalidated: deps.Invalidated,
		tokenizer:   deps.Tokenizer,
		verifier:    deps.Verifier,
		eventPub:    deps.EventPub,
		logger:      deps.Logger,
		nonceTTL:    DefaultNonceTTL,
		accessTTL:   DefaultAccessTTL,
		refreshTTL:  DefaultRefreshTTL,
	}
}

// GeneratedMessage is the response to a message request.
type GeneratedMessage struct {
	Message   string `json:"message"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// GenerateMessage creates a fresh nonce for the wallet address, stores
// it (replacing any prior pending nonce for that address) and returns
// the formatted message for the wallet to sign.
func (s *AuthService) GenerateMessage(ctx context.Context, walletAddress string) (*GeneratedMessage, error) {
	if walletAddress == "" {
		return nil, core.NewError(core.CodeInvalidArgument, "wallet address is required")
	}
	if !ethcommon.IsHexAddress(walletAddress) {
		return nil, core.NewError(core.CodeInvalidArgument, "wallet address is not a valid address")
	}

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, core.WrapError(core.CodeInternal, "failed to generate nonce", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	now := time.Now()
	record := &core.NonceRecord{
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}

	if err := s.nonces.Put(ctx, walletAddress, record); err != nil {
		s.logger.Error("failed to persist nonce",
			zap.String("address", walletAddress),
			zap.Error(err),
		)
		return nil, core.WrapError(core.CodeInternal, "failed to store authentication nonce", err)
	}

	timestamp := now.UnixMilli()
	return &GeneratedMessage{
		Message:   core.FormatAuthMessage(walletAddress, nonce, timestamp),
		Nonce:     nonce,
		Timestamp: timestamp,
	}, nil
}

// VerifyLoginRequest carries the inputs of a verification attempt.
type VerifyLoginRequest struct {
	WalletAddress string
	Signature     string
	SignatureType eth.SignatureType
	ChainID       *big.Int
	DeviceID      string
	Platform      string
}

// VerifyAndLogin checks the signature against the stored nonce,
// upserts the user profile, consumes the nonce and issues session
// tokens. Secondary steps (device approval, nonce deletion, login
// event) are best-effort: their failure never overrides a verified
// authentication.
func (s *AuthService) VerifyAndLogin(ctx context.Context, req VerifyLoginRequest) (*core.LoginResult, error) {
	if err := validateVerifyRequest(&req); err != nil {
		return nil, err
	}

	record, err := s.nonces.Get(ctx, req.WalletAddress)
	if err != nil {
		return nil, core.WrapError(core.CodeInternal, "failed to load authentication nonce", err)
	}
	if record == nil {
		return nil, core.NewError(core.CodeNotFound, "no authentication message found, generate a new one")
	}

	now := time.Now()
	if record.Expired(now) {
		// The only path where a nonce is consumed without full
		// authentication; stale nonces must not linger.
		if _, err := s.nonces.Delete(ctx, req.WalletAddress); err != nil {
			s.logger.Warn("failed to delete expired nonce",
				zap.String("address", req.WalletAddress),
				zap.Error(err),
			)
		}
		return nil, core.NewError(core.CodeDeadlineExceeded, "authentication message expired, generate a new one")
	}

	timestamp := record.IssuedAt.UnixMilli()
	message := core.FormatAuthMessage(req.WalletAddress, record.Nonce, timestamp)

	verifyErr := s.verifier.Verify(ctx, eth.VerifyRequest{
		Type:            req.SignatureType,
		WalletAddress:   req.WalletAddress,
		Message:         message,
		Nonce:           record.Nonce,
		TimestampMillis: timestamp,
		Signature:       req.Signature,
		ChainID:         req.ChainID,
	})
	if verifyErr != nil {
		if errors.Is(verifyErr, core.ErrAddressMismatch) {
			return nil, core.WrapError(core.CodeUnauthenticated, "signature does not belong to this wallet", verifyErr)
		}
		return nil, core.WrapError(core.CodeUnauthenticated, "signature verification failed", verifyErr)
	}

	profile, err := s.upsertProfile(ctx, req.WalletAddress, now)
	if err != nil {
		return nil, err
	}

	s.approveDevice(ctx, &req)

	// Anti-replay. Best-effort: the signature was already verified once
	// against a fresh nonce, and the stored record carries its own TTL
	// backstop. Flip this to a hard failure for the strict posture.
	if removed, err := s.nonces.Delete(ctx, req.WalletAddress); err != nil {
		s.logger.Warn("failed to delete consumed nonce",
			zap.String("address", req.WalletAddress),
			zap.Error(err),
		)
	} else if !removed {
		s.logger.Warn("nonce already consumed by a concurrent attempt",
			zap.String("address", req.WalletAddress),
		)
	}

	session := &core.Session{
		ID:            uuid.New().String(),
		Address:       strings.ToLower(req.WalletAddress),
		IssuedAt:      now,
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshExpiry: now.Add(s.refreshTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return nil, core.WrapError(core.CodeUnauthenticated, "failed to generate a valid session token", err)
	}
	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return nil, core.WrapError(core.CodeUnauthenticated, "failed to generate a valid session token", err)
	}

	if err := s.eventPub.PublishLogin(ctx, session.Address, session.ID); err != nil {
		s.logger.Warn("failed to publish login event",
			zap.String("address", session.Address),
			zap.Error(err),
		)
	}

	s.logger.Info("wallet authenticated",
		zap.String("address", session.Address),
		zap.String("session_id", session.ID),
		zap.String("signature_type", string(req.SignatureType)),
	)

	return &core.LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         profile,
	}, nil
}

func validateVerifyRequest(req *VerifyLoginRequest) error {
	if req.WalletAddress == "" {
		return core.NewError(core.CodeInvalidArgument, "wallet address is required")
	}
	if !ethcommon.IsHexAddress(req.WalletAddress) {
		return core.NewError(core.CodeInvalidArgument, "wallet address is not a valid address")
	}
	if req.Signature == "" {
		return core.NewError(core.CodeInvalidArgument, "signature is required")
	}

	// Safe payloads are variable-length contract blobs checked in the
	// verifier; plain signatures must be well-formed hex up front.
	if req.SignatureType != eth.SignatureSafeWallet {
		if !strings.HasPrefix(req.Signature, "0x") {
			return core.NewError(core.CodeInvalidArgument, "signature must be a 0x-prefixed hex string")
		}
		if !isHex(req.Signature[2:]) {
			return core.NewError(core.CodeInvalidArgument, "signature contains non-hex characters")
		}
	}
	return nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// upsertProfile creates the profile on first login and advances
// UpdatedAt on every subsequent one. CreatedAt never changes after the
// first write. A failed write here is fatal: downstream systems depend
// on profile existence.
func (s *AuthService) upsertProfile(ctx context.Context, walletAddress string, now time.Time) (*core.UserProfile, error) {
	address := strings.ToLower(walletAddress)

	profile, err := s.users.GetUser(ctx, address)
	if err != nil {
		return nil, core.WrapError(core.CodeInternal, "failed to load user profile", err)
	}

	if profile == nil {
		profile = &core.UserProfile{
			WalletAddress: address,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	} else {
		profile.UpdatedAt = now
	}

	if err := s.users.PutUser(ctx, profile); err != nil {
		return nil, core.WrapError(core.CodeInternal, "failed to persist user profile", err)
	}
	return profile, nil
}

// approveDevice marks the caller's device trusted for app-check
// minting. Best-effort side channel: failures are logged and swallowed.
func (s *AuthService) approveDevice(ctx context.Context, req *VerifyLoginRequest) {
	deviceID := req.DeviceID
	platform := req.Platform

	// A Safe has no single originating device, so the approval identity
	// is derived from the wallet itself.
	if req.SignatureType == eth.SignatureSafeWallet {
		deviceID = SafeDeviceID(req.WalletAddress)
		if platform == "" {
			platform = "safe"
		}
	}

	if deviceID == "" || platform == "" {
		return
	}

	now := time.Now()
	approval, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		s.logger.Warn("failed to load device approval",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return
	}

	if approval == nil {
		approval = &core.DeviceApproval{
			DeviceID:      deviceID,
			WalletAddress: strings.ToLower(req.WalletAddress),
			ApprovedAt:    now,
			Platform:      platform,
		}
	}
	approval.LastUsed = now

	if err := s.devices.PutDevice(ctx, approval); err != nil {
		s.logger.Warn("failed to persist device approval",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}

// SafeDeviceID derives the deterministic approval identity for a Safe
// wallet from its address.
func SafeDeviceID(walletAddress string) string {
	return "safe:" + strings.ToLower(walletAddress)
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (string, string, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	if time.Now().After(session.RefreshExpiry) {
		return "", "", core.ErrTokenExpired
	}

	invalidated, err := s.invalidated.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return "", "", core.ErrTokenInvalidated
	}

	// Invalidate the old refresh token for the remainder of its life.
	if err := s.invalidated.InvalidateToken(ctx, session.RefreshID, time.Until(session.RefreshExpiry)); err != nil {
		return "", "", fmt.Errorf("failed to invalidate old token: %w", err)
	}

	now := time.Now()
	newSession := &core.Session{
		ID:            uuid.New().String(),
		Address:       session.Address,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(newSession)
	if err != nil {
		return "", "", fmt.Errorf("failed to create new access token: %w", err)
	}
	refreshToken, err := s.tokenizer.SessionToRefreshToken(newSession)
	if err != nil {
		return "", "", fmt.Errorf("failed to create new refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	// Even an expired token gets an invalidation record, so it can't be
	// replayed through clock skew.
	remaining := time.Until(session.RefreshExpiry)
	if remaining <= 0 {
		remaining = time.Hour
	}

	if err := s.invalidated.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		// The token is already invalidated in the store, which is the
		// critical part.
		s.logger.Warn("failed to publish logout event",
			zap.String("address", session.Address),
			zap.Error(err),
		)
	}

	return nil
}

// ValidateAccessToken parses and validates an access token, checking
// the associated refresh token has not been invalidated.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	if session.RefreshID != "" {
		invalidated, err := s.invalidated.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}
