package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/superpool/walletauth/adapters/store"
	"github.com/superpool/walletauth/adapters/tokenizer"
	"github.com/superpool/walletauth/core"
	"github.com/superpool/walletauth/internal/eth"
	"github.com/superpool/walletauth/ports"
)

type fakeEventPublisher struct {
	mu      sync.Mutex
	logins  []string
	logouts []string
	fail    bool
}

func (p *fakeEventPublisher) PublishLogin(ctx context.Context, address, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.logins = append(p.logins, address)
	return nil
}

func (p *fakeEventPublisher) PublishLogout(ctx context.Context, address, refreshID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.logouts = append(p.logouts, address)
	return nil
}

type emptyRegistry struct{}

func (emptyRegistry) Caller(chainID *big.Int) (ports.ChainCaller, error) {
	return nil, fmt.Errorf("no provider configured for chain %s", chainID)
}

type testEnv struct {
	service *AuthService
	store   *store.MemoryStore
	events  *fakeEventPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	events := &fakeEventPublisher{}

	svc := NewAuthService(Deps{
		Nonces:      mem,
		Users:       mem,
		Devices:     mem,
		Invalidated: mem,
		Tokenizer:   tokenizer.NewJWTTokenizer(signKey),
		Verifier:    eth.NewVerifier(emptyRegistry{}, zap.NewNop()),
		EventPub:    events,
		Logger:      zap.NewNop(),
	})

	return &testEnv{service: svc, store: mem, events: events}
}

func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

// signLoginMessage reproduces the message the wallet is asked to sign
// and produces a personal-sign signature over it.
func signLoginMessage(t *testing.T, key *ecdsa.PrivateKey, msg *GeneratedMessage) string {
	t.Helper()
	sig, err := ethcrypto.Sign(eth.PersonalSignHash(msg.Message), key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func TestGenerateMessageStoresNonce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, address := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	assert.Len(t, msg.Nonce, 32) // 16 random bytes, hex encoded
	assert.Contains(t, msg.Message, address)
	assert.Contains(t, msg.Message, msg.Nonce)

	record, err := env.store.Get(ctx, address)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, msg.Nonce, record.Nonce)
	assert.Equal(t, msg.Timestamp, record.IssuedAt.UnixMilli())
}

func TestGenerateMessageReplacesPriorNonce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, address := newWallet(t)

	first, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)
	second, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)

	record, err := env.store.Get(ctx, address)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, second.Nonce, record.Nonce)
}

func TestGenerateMessageRejectsBadAddress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.GenerateMessage(ctx, "")
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidArgument, core.CodeOf(err))

	_, err = env.service.GenerateMessage(ctx, "not-an-address")
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidArgument, core.CodeOf(err))
}

func TestVerifyAndLoginHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	result, err := env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, key, msg),
		SignatureType: eth.SignaturePersonalSign,
		DeviceID:      "device-1",
		Platform:      "ios",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	require.NotNil(t, result.User)
	assert.Equal(t, strings.ToLower(address), result.User.WalletAddress)
	assert.Equal(t, result.User.CreatedAt, result.User.UpdatedAt)

	// The tokens must validate back into a session for this wallet.
	session, err := env.service.ValidateAccessToken(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(address), session.Address)

	// Device is approved for app-check minting.
	approval, err := env.store.GetDevice(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, strings.ToLower(address), approval.WalletAddress)
	assert.Equal(t, "ios", approval.Platform)

	// Login event published.
	assert.Equal(t, []string{strings.ToLower(address)}, env.events.logins)
}

func TestVerifyAndLoginConsumesNonce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	req := VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, key, msg),
		SignatureType: eth.SignaturePersonalSign,
	}

	_, err = env.service.VerifyAndLogin(ctx, req)
	require.NoError(t, err)

	// Replaying the exact same signature fails: the nonce is gone.
	_, err = env.service.VerifyAndLogin(ctx, req)
	require.Error(t, err)
	assert.Equal(t, core.CodeNotFound, core.CodeOf(err))
}

func TestVerifyAndLoginExpiredNonce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	issued := time.Now().Add(-time.Hour)
	record := &core.NonceRecord{
		Nonce:     "deadbeef",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(DefaultNonceTTL),
	}
	require.NoError(t, env.store.Put(ctx, address, record))

	message := core.FormatAuthMessage(address, record.Nonce, issued.UnixMilli())
	sig, err := ethcrypto.Sign(eth.PersonalSignHash(message), key)
	require.NoError(t, err)

	_, err = env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     hexutil.Encode(sig),
		SignatureType: eth.SignaturePersonalSign,
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeDeadlineExceeded, core.CodeOf(err))

	// Expired nonce is consumed even though authentication failed.
	stored, err := env.store.Get(ctx, address)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestVerifyAndLoginNearExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	issued := time.Now().Add(-DefaultNonceTTL + 5*time.Second)
	record := &core.NonceRecord{
		Nonce:     "deadbeef",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(DefaultNonceTTL),
	}
	require.NoError(t, env.store.Put(ctx, address, record))

	message := core.FormatAuthMessage(address, record.Nonce, issued.UnixMilli())
	sig, err := ethcrypto.Sign(eth.PersonalSignHash(message), key)
	require.NoError(t, err)

	_, err = env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     hexutil.Encode(sig),
		SignatureType: eth.SignaturePersonalSign,
	})
	assert.NoError(t, err)
}

func TestVerifyAndLoginNoNonce(t *testing.T) {
	env := newTestEnv(t)
	_, address := newWallet(t)

	_, err := env.service.VerifyAndLogin(context.Background(), VerifyLoginRequest{
		WalletAddress: address,
		Signature:     "0xdeadbeef",
		SignatureType: eth.SignaturePersonalSign,
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeNotFound, core.CodeOf(err))
}

func TestVerifyAndLoginWrongSigner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, address := newWallet(t)
	attackerKey, _ := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	_, err = env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, attackerKey, msg),
		SignatureType: eth.SignaturePersonalSign,
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeUnauthenticated, core.CodeOf(err))
	assert.ErrorIs(t, err, core.ErrAddressMismatch)
	assert.Contains(t, err.Error(), "does not belong to this wallet")
}

func TestVerifyAndLoginValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, address := newWallet(t)

	tests := []struct {
		name    string
		req     VerifyLoginRequest
		message string
	}{
		{
			name:    "missing address",
			req:     VerifyLoginRequest{Signature: "0xab"},
			message: "wallet address is required",
		},
		{
			name:    "malformed address",
			req:     VerifyLoginRequest{WalletAddress: "0x123", Signature: "0xab"},
			message: "wallet address is not a valid address",
		},
		{
			name:    "missing signature",
			req:     VerifyLoginRequest{WalletAddress: address},
			message: "signature is required",
		},
		{
			name:    "no hex prefix",
			req:     VerifyLoginRequest{WalletAddress: address, Signature: "abcd"},
			message: "signature must be a 0x-prefixed hex string",
		},
		{
			name:    "non-hex signature",
			req:     VerifyLoginRequest{WalletAddress: address, Signature: "0xzzzz"},
			message: "signature contains non-hex characters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.VerifyAndLogin(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, core.CodeInvalidArgument, core.CodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestVerifyAndLoginSafePayloadSkipsHexCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, address := newWallet(t)

	_, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	// Not hex, but Safe payloads are opaque; the failure must come from
	// the verifier, not input validation.
	_, err = env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     "safe-payload",
		SignatureType: eth.SignatureSafeWallet,
		ChainID:       big.NewInt(1),
	})
	require.Error(t, err)
	assert.Equal(t, core.CodeUnauthenticated, core.CodeOf(err))
}

func TestVerifyAndLoginUpdatesExistingProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	createdAt := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, env.store.PutUser(ctx, &core.UserProfile{
		WalletAddress: strings.ToLower(address),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}))

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	result, err := env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, key, msg),
		SignatureType: eth.SignaturePersonalSign,
	})
	require.NoError(t, err)

	assert.True(t, result.User.CreatedAt.Equal(createdAt))
	assert.True(t, result.User.UpdatedAt.After(createdAt))
}

func TestVerifyAndLoginEventFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.events.fail = true
	ctx := context.Background()
	key, address := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)

	result, err := env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, key, msg),
		SignatureType: eth.SignaturePersonalSign,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestSafeDeviceID(t *testing.T) {
	assert.Equal(t, "safe:0xabc0", SafeDeviceID("0xAbC0"))
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)
	result, err := env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, key, msg),
		SignatureType: eth.SignaturePersonalSign,
	})
	require.NoError(t, err)

	access, refresh, err := env.service.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.NotEqual(t, result.RefreshToken, refresh)

	// The old refresh token is single-use.
	_, _, err = env.service.Refresh(ctx, result.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// The rotated token works.
	_, _, err = env.service.Refresh(ctx, refresh)
	assert.NoError(t, err)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key, address := newWallet(t)

	msg, err := env.service.GenerateMessage(ctx, address)
	require.NoError(t, err)
	result, err := env.service.VerifyAndLogin(ctx, VerifyLoginRequest{
		WalletAddress: address,
		Signature:     signLoginMessage(t, key, msg),
		SignatureType: eth.SignaturePersonalSign,
	})
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(ctx, result.RefreshToken))

	_, _, err = env.service.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	// Access tokens carrying the invalidated refresh id are rejected too.
	_, err = env.service.ValidateAccessToken(ctx, result.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	assert.Equal(t, []string{strings.ToLower(address)}, env.events.logouts)
}

func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ValidateAccessToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}
