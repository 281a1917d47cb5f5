package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// MagicLinkRequest asks for a magic link to be issued for an email.
type MagicLinkRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Purpose   string `json:"purpose" validate:"omitempty,oneof=login review_session password_reset"`
	SessionID string `json:"session_id" validate:"omitempty"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// AuthUser describes the authenticated account in responses. The password
// hash never leaves the service.
type AuthUser struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// AuthResponse returns the issued token pair and user info.
type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         AuthUser `json:"user"`
}

// TokenResponse returns a refreshed access token. The refresh token is not
// rotated, so no new one is included.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenValidationResult is returned by the validate endpoint.
type TokenValidationResult struct {
	Valid     bool   `json:"valid"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// IssuedMagicLink is the issuer-side result of creating a magic link.
// Delivery of the link is left to an external notifier.
type IssuedMagicLink struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	MagicLink string    `json:"magic_link"`
}

// TokenTypeAccess tags access-token claims so refresh material can never
// masquerade as an access token.
const TokenTypeAccess = "access"

// AccessTokenClaims is the JWT payload for access tokens.
type AccessTokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}
