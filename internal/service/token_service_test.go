package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerit/auth-service/internal/models"
	appErrors "github.com/peerit/auth-service/pkg/errors"
)

func TestGenerateAndVerifyAccessToken(t *testing.T) {
	svc := testTokenService()
	user := &models.UserCredential{ID: "u1", Email: "user@example.com"}

	signed, expiresAt, err := svc.GenerateAccessToken(user, "sess-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), expiresAt, time.Minute)

	claims, err := svc.VerifyAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "peerit-auth", claims.Issuer)
	assert.Contains(t, claims.Audience, "peerit-services")
}

func TestVerifyAccessTokenWrongSecret(t *testing.T) {
	minted := testTokenService()
	user := &models.UserCredential{ID: "u1", Email: "user@example.com"}
	signed, _, err := minted.GenerateAccessToken(user, "sess-1")
	require.NoError(t, err)

	other := NewTokenService(TokenConfig{Secret: "different", Issuer: "peerit-auth", AccessExpiry: 15 * time.Minute})
	_, err = other.VerifyAccessToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestVerifyAccessTokenWrongIssuer(t *testing.T) {
	minted := NewTokenService(TokenConfig{Secret: "test-secret", Issuer: "someone-else", AccessExpiry: 15 * time.Minute})
	user := &models.UserCredential{ID: "u1", Email: "user@example.com"}
	signed, _, err := minted.GenerateAccessToken(user, "sess-1")
	require.NoError(t, err)

	_, err = testTokenService().VerifyAccessToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestVerifyAccessTokenExpired(t *testing.T) {
	minted := NewTokenService(TokenConfig{
		Secret:       "test-secret",
		Issuer:       "peerit-auth",
		Audience:     []string{"peerit-services"},
		AccessExpiry: -time.Minute,
	})
	user := &models.UserCredential{ID: "u1", Email: "user@example.com"}
	signed, _, err := minted.GenerateAccessToken(user, "sess-1")
	require.NoError(t, err)

	_, err = testTokenService().VerifyAccessToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestVerifyAccessTokenRejectsWrongType(t *testing.T) {
	// A token signed with the right key but carrying a different type claim
	// must not pass as an access token.
	now := time.Now().UTC()
	claims := &models.AccessTokenClaims{
		UserID:    "u1",
		Email:     "user@example.com",
		SessionID: "sess-1",
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "peerit-auth",
			Subject:   "u1",
			Audience:  jwt.ClaimStrings{"peerit-services"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = testTokenService().VerifyAccessToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErrors.FromError(err).Code)
}

func TestVerifyAccessTokenRejectsUnsignedAlg(t *testing.T) {
	now := time.Now().UTC()
	claims := &models.AccessTokenClaims{
		UserID:    "u1",
		TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "peerit-auth",
			Audience:  jwt.ClaimStrings{"peerit-services"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = testTokenService().VerifyAccessToken(signed)
	require.Error(t, err)
}

func TestOpaqueTokenValues(t *testing.T) {
	svc := testTokenService()

	refresh, err := svc.NewRefreshTokenValue()
	require.NoError(t, err)
	assert.Len(t, refresh, 80)

	magic, err := svc.NewMagicLinkTokenValue()
	require.NoError(t, err)
	assert.Len(t, magic, 64)

	again, err := svc.NewRefreshTokenValue()
	require.NoError(t, err)
	assert.NotEqual(t, refresh, again)
}
