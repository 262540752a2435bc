package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superpool/walletauth/core"
	"github.com/superpool/walletauth/ports"
)

func newTokenizer(t *testing.T) ports.Tokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key)
}

func testSession() *core.Session {
	now := time.Now().Truncate(time.Second)
	return &core.Session{
		ID:            "session-1",
		Address:       "0xabc0000000000000000000000000000000000001",
		IssuedAt:      now,
		AccessExpiry:  now.Add(5 * time.Minute),
		RefreshExpiry: now.Add(5 * 24 * time.Hour),
		RefreshID:     "refresh-1",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tok := newTokenizer(t)
	session := testSession()

	token, err := tok.SessionToAccessToken(session)
	require.NoError(t, err)

	got, err := tok.AccessTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Address, got.Address)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.True(t, session.AccessExpiry.Equal(got.AccessExpiry))
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	tok := newTokenizer(t)
	session := testSession()

	token, err := tok.SessionToRefreshToken(session)
	require.NoError(t, err)

	got, err := tok.RefreshTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.Address, got.Address)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.True(t, session.RefreshExpiry.Equal(got.RefreshExpiry))
}

func TestAudiencesAreNotInterchangeable(t *testing.T) {
	tok := newTokenizer(t)
	session := testSession()

	access, err := tok.SessionToAccessToken(session)
	require.NoError(t, err)
	refresh, err := tok.SessionToRefreshToken(session)
	require.NoError(t, err)

	_, err = tok.RefreshTokenToSession(access)
	assert.Error(t, err, "access token must not pass as a refresh token")

	_, err = tok.AccessTokenToSession(refresh)
	assert.Error(t, err, "refresh token must not pass as an access token")
}

func TestTokensFromAnotherKeyAreRejected(t *testing.T) {
	tok := newTokenizer(t)
	other := newTokenizer(t)

	token, err := other.SessionToAccessToken(testSession())
	require.NoError(t, err)

	_, err = tok.AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestExpiredAccessTokenIsRejected(t *testing.T) {
	tok := newTokenizer(t)
	session := testSession()
	session.IssuedAt = time.Now().Add(-time.Hour)
	session.AccessExpiry = time.Now().Add(-55 * time.Minute)

	token, err := tok.SessionToAccessToken(session)
	require.NoError(t, err)

	_, err = tok.AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestMintAppCheckToken(t *testing.T) {
	tok := newTokenizer(t)

	before := time.Now()
	token, expiry, err := tok.MintAppCheckToken("device-1", time.Hour)
	require.NoError(t, err)

	assert.NotEmpty(t, token)
	assert.WithinDuration(t, before.Add(time.Hour), expiry, 5*time.Second)

	// App-check tokens live in their own audience.
	_, err = tok.AccessTokenToSession(token)
	assert.Error(t, err)
}

func TestGarbageTokensAreRejected(t *testing.T) {
	tok := newTokenizer(t)

	_, err := tok.AccessTokenToSession("not.a.token")
	assert.Error(t, err)

	_, err = tok.RefreshTokenToSession("")
	assert.Error(t, err)
}
