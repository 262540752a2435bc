package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/walletauth/core"
	"github.com/superpool/walletauth/ports"
)

// DefaultAppCheckTTL is how long a minted device-attestation token lives.
const DefaultAppCheckTTL = time.Hour

// AppCheckService mints short-lived attestation tokens for devices that
// were approved during a successful wallet authentication.
type AppCheckService struct {
	devices   ports.DeviceStore
	tokenizer ports.Tokenizer
	logger    *zap.Logger
	tokenTTL  time.Duration
}

// NewAppCheckService creates a new app-check minting service
func NewAppCheckService(devices ports.DeviceStore, tokenizer ports.Tokenizer, logger *zap.Logger) *AppCheckService {
	return &AppCheckService{
		devices:   devices,
		tokenizer: tokenizer,
		logger:    logger,
		tokenTTL:  DefaultAppCheckTTL,
	}
}

// MintedToken is the response to an app-check mint request.
type MintedToken struct {
	AppCheckToken    string `json:"appCheckToken"`
	ExpireTimeMillis int64  `json:"expireTimeMillis"`
}

// Mint issues an attestation token for an approved device and advances
// its LastUsed marker. Unknown devices are rejected as unauthenticated.
func (s *AppCheckService) Mint(ctx context.Context, deviceID string) (*MintedToken, error) {
	if deviceID == "" {
		return nil, core.NewError(core.CodeInvalidArgument, "device id is required")
	}

	approval, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, core.WrapError(core.CodeUnauthenticated, "device verification failed", err)
	}
	if approval == nil {
		return nil, core.NewError(core.CodeUnauthenticated, "device is not approved")
	}

	token, expiry, err := s.tokenizer.MintAppCheckToken(deviceID, s.tokenTTL)
	if err != nil {
		return nil, core.WrapError(core.CodeInternal, "failed to mint app check token", err)
	}

	approval.LastUsed = time.Now()
	if err := s.devices.PutDevice(ctx, approval); err != nil {
		s.logger.Warn("failed to update device last-used marker",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	return &MintedToken{
		AppCheckToken:    token,
		ExpireTimeMillis: expiry.UnixMilli(),
	}, nil
}
