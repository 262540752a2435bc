package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/superpool/walletauth/adapters/store"
	"github.com/superpool/walletauth/adapters/tokenizer"
	"github.com/superpool/walletauth/core"
)

func newAppCheckEnv(t *testing.T) (*AppCheckService, *store.MemoryStore) {
	t.Helper()
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	mem := store.NewMemoryStore()
	return NewAppCheckService(mem, tokenizer.NewJWTTokenizer(signKey), zap.NewNop()), mem
}

func TestMintRequiresDeviceID(t *testing.T) {
	svc, _ := newAppCheckEnv(t)

	_, err := svc.Mint(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidArgument, core.CodeOf(err))
}

func TestMintRejectsUnknownDevice(t *testing.T) {
	svc, _ := newAppCheckEnv(t)

	_, err := svc.Mint(context.Background(), "unknown-device")
	require.Error(t, err)
	assert.Equal(t, core.CodeUnauthenticated, core.CodeOf(err))
	assert.Contains(t, err.Error(), "device is not approved")
}

func TestMintForApprovedDevice(t *testing.T) {
	svc, mem := newAppCheckEnv(t)
	ctx := context.Background()

	approvedAt := time.Now().Add(-time.Hour)
	require.NoError(t, mem.PutDevice(ctx, &core.DeviceApproval{
		DeviceID:      "device-1",
		WalletAddress: "0xabc",
		ApprovedAt:    approvedAt,
		Platform:      "android",
		LastUsed:      approvedAt,
	}))

	before := time.Now()
	minted, err := svc.Mint(ctx, "device-1")
	require.NoError(t, err)

	assert.NotEmpty(t, minted.AppCheckToken)

	expiry := time.UnixMilli(minted.ExpireTimeMillis)
	assert.WithinDuration(t, before.Add(DefaultAppCheckTTL), expiry, 5*time.Second)

	// Minting advances the device's LastUsed marker.
	approval, err := mem.GetDevice(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.True(t, approval.LastUsed.After(approvedAt))
}
