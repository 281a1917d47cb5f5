package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peerit/auth-service/internal/models"
	appErrors "github.com/peerit/auth-service/pkg/errors"
)

// Entropy sizes for opaque tokens, in bytes before hex encoding.
const (
	refreshTokenBytes   = 40
	magicLinkTokenBytes = 32
)

// TokenConfig defines signing parameters for access tokens.
type TokenConfig struct {
	Secret       string
	Issuer       string
	Audience     []string
	AccessExpiry time.Duration
}

// TokenService mints and verifies signed access tokens and generates the
// opaque values used for refresh and magic-link tokens. Refresh tokens are
// deliberately not JWTs: they live server-side, so revocation is a row
// update and there is no second signing key to protect.
type TokenService struct {
	config TokenConfig
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{config: config}
}

// AccessExpiry returns the configured access-token lifetime.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.config.AccessExpiry
}

// GenerateAccessToken signs a short-lived token binding the user to a
// session id.
func (s *TokenService) GenerateAccessToken(user *models.UserCredential, sessionID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessExpiry)
	claims := &models.AccessTokenClaims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: sessionID,
		TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken parses and validates an access token, enforcing the
// signing method, key, issuer, audience and the access type claim. Tokens
// minted for any other purpose are rejected here.
func (s *TokenService) VerifyAccessToken(tokenString string) (*models.AccessTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if len(s.config.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.config.Audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidToken.Code, appErrors.ErrInvalidToken.Status, "invalid or expired token")
	}

	claims, ok := token.Claims.(*models.AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid token claims")
	}
	if claims.TokenType != models.TokenTypeAccess {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "token is not an access token")
	}

	return claims, nil
}

// NewRefreshTokenValue returns a fresh opaque refresh token value.
func (s *TokenService) NewRefreshTokenValue() (string, error) {
	return randomHex(refreshTokenBytes)
}

// NewMagicLinkTokenValue returns a fresh opaque magic-link token value.
func (s *TokenService) NewMagicLinkTokenValue() (string, error) {
	return randomHex(magicLinkTokenBytes)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
