package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerit/auth-service/internal/models"
	"github.com/peerit/auth-service/internal/repository"
	appErrors "github.com/peerit/auth-service/pkg/errors"
)

type authCredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.UserCredential, error)
	FindByID(ctx context.Context, id string) (*models.UserCredential, error)
	IncrementFailedLogins(ctx context.Context, id string) (int, error)
	LockAccount(ctx context.Context, id string, until time.Time) error
	ResetFailedLogins(ctx context.Context, id string, lastLogin time.Time) error
}

type authRefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	TouchRefreshToken(ctx context.Context, id string, usedAt time.Time) error
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// SessionStore is the capability interface over the session backends.
// Writes always reset the TTL to the full window.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}

type magicLinkConsumer interface {
	ValidateAndConsume(ctx context.Context, token string) (*models.UserCredential, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	RefreshExpiry     time.Duration
	SessionTTL        time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// AuthService orchestrates credential verification, lockout policy, token
// issuance and the session lifecycle.
type AuthService struct {
	creds     authCredentialStore
	tokens    authRefreshTokenStore
	sessions  SessionStore
	issuer    *TokenService
	magic     magicLinkConsumer
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(creds authCredentialStore, tokens authRefreshTokenStore, sessions SessionStore, issuer *TokenService, magic magicLinkConsumer, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		creds:     creds,
		tokens:    tokens,
		sessions:  sessions,
		issuer:    issuer,
		magic:     magic,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
	}
}

// Login authenticates a user by email and password and returns issued
// tokens. The unknown-email and wrong-password paths return the same error
// so responses carry no user-enumeration signal.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.creds.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLogin("invalid_credentials")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid credentials")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	now := time.Now().UTC()
	if user.LockedNow(now) {
		s.metrics.RecordLogin("locked")
		return nil, appErrors.Clone(appErrors.ErrAccountLocked, lockedMessage(*user.LockedUntil, now))
	}

	if !user.IsActive {
		s.metrics.RecordLogin("inactive")
		return nil, appErrors.Clone(appErrors.ErrAccountInactive, "account is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.recordFailedAttempt(ctx, user)
	}

	if err := s.creds.ResetFailedLogins(ctx, user.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset login state")
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	s.metrics.RecordLogin("success")
	return s.generateAuthResponse(ctx, user, req.UserAgent, req.IP)
}

// recordFailedAttempt increments the failure counter and applies the lock
// once the threshold is reached. The increment and the observed count come
// from one atomic storage statement, so concurrent attempts cannot
// under-count nor double-apply the lock transition.
func (s *AuthService) recordFailedAttempt(ctx context.Context, user *models.UserCredential) error {
	attempts, err := s.creds.IncrementFailedLogins(ctx, user.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record login attempt")
	}

	if attempts >= s.config.MaxFailedAttempts {
		until := time.Now().UTC().Add(s.config.LockoutDuration)
		if err := s.creds.LockAccount(ctx, user.ID, until); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock account")
		}
		s.metrics.RecordLogin("locked")
		return appErrors.Clone(appErrors.ErrAccountLocked, "too many failed attempts, account locked temporarily")
	}

	s.metrics.RecordLogin("invalid_credentials")
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid credentials")
}

// LoginWithMagicLink redeems a magic-link token and issues tokens for its
// owner. Possession of a live link is itself proof of control, so failure
// counters are reset on success.
func (s *AuthService) LoginWithMagicLink(ctx context.Context, token, userAgent, ipAddress string) (*models.AuthResponse, error) {
	user, err := s.magic.ValidateAndConsume(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.creds.ResetFailedLogins(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to reset login state after magic link", zap.Error(err))
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	return s.generateAuthResponse(ctx, user, userAgent, ipAddress)
}

// RefreshAccessToken exchanges a live refresh token for a new access token
// bound to a fresh session. The refresh token itself is not rotated: it
// stays valid until its own expiry or explicit revocation.
func (s *AuthService) RefreshAccessToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.tokens.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "invalid refresh token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if stored.Revoked {
		return nil, appErrors.Clone(appErrors.ErrRefreshTokenRevoked, "refresh token revoked")
	}
	if time.Now().UTC().After(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrRefreshTokenExpired, "refresh token expired")
	}

	user, err := s.creds.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "invalid refresh token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrAccountInactive, "account is inactive")
	}

	if err := s.tokens.TouchRefreshToken(ctx, stored.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to stamp refresh token use", zap.Error(err))
	}

	sessionID := uuid.NewString()
	accessToken, _, err := s.issuer.GenerateAccessToken(user, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.writeSession(ctx, user, sessionID, req.UserAgent, req.IP); err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.issuer.AccessExpiry().Seconds()),
	}, nil
}

// Logout tears down whatever session fragments the caller still holds. It
// is best-effort and idempotent: absent sessions and unknown refresh
// tokens are not errors.
func (s *AuthService) Logout(ctx context.Context, sessionID, refreshToken string) {
	if sessionID != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("failed to delete session on logout", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	if refreshToken != "" {
		stored, err := s.tokens.FindRefreshToken(ctx, refreshToken)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("failed to look up refresh token on logout", zap.Error(err))
			}
			return
		}
		if err := s.tokens.RevokeRefreshToken(ctx, stored.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to revoke refresh token on logout", zap.Error(err))
		}
	}
}

// LogoutAllSessions deletes every session and revokes every refresh token
// owned by the user.
func (s *AuthService) LogoutAllSessions(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrSessionStorageUnavailable.Code, appErrors.ErrSessionStorageUnavailable.Status, "failed to delete sessions")
	}
	if err := s.tokens.RevokeUserRefreshTokens(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh tokens")
	}
	return nil
}

// ValidateToken verifies an access token and confirms its session still
// exists. The session lookup is what makes logout revoke in-flight access
// tokens despite JWTs being stateless. A successful validation slides the
// session's activity window.
func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) (*models.TokenValidationResult, error) {
	claims, err := s.issuer.VerifyAccessToken(accessToken)
	if err != nil {
		s.metrics.RecordTokenValidation("invalid_token")
		return nil, err
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionMiss) {
			s.metrics.RecordTokenValidation("session_not_found")
			return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrSessionStorageUnavailable.Code, appErrors.ErrSessionStorageUnavailable.Status, "session storage not available")
	}

	session.LastActivity = time.Now().UTC().Format(time.RFC3339)
	if err := s.sessions.Update(ctx, session, s.config.SessionTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSessionStorageUnavailable.Code, appErrors.ErrSessionStorageUnavailable.Status, "session storage not available")
	}

	s.metrics.RecordTokenValidation("valid")
	return &models.TokenValidationResult{
		Valid:     true,
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// ParseAccessToken verifies only the token itself, without consulting the
// session store. Used where a dead session must not block the operation,
// e.g. extracting the session id during logout.
func (s *AuthService) ParseAccessToken(accessToken string) (*models.AccessTokenClaims, error) {
	return s.issuer.VerifyAccessToken(accessToken)
}

// generateAuthResponse mints the access/refresh token pair and a fresh
// session for an authenticated user.
func (s *AuthService) generateAuthResponse(ctx context.Context, user *models.UserCredential, userAgent, ipAddress string) (*models.AuthResponse, error) {
	sessionID := uuid.NewString()

	accessToken, _, err := s.issuer.GenerateAccessToken(user, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshValue, err := s.issuer.NewRefreshTokenValue()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	refreshToken := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     refreshValue,
		ExpiresAt: time.Now().UTC().Add(s.config.RefreshExpiry),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.tokens.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if err := s.writeSession(ctx, user, sessionID, userAgent, ipAddress); err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessExpiry().Seconds()),
		User: models.AuthUser{
			ID:        user.ID,
			Email:     user.Email,
			IsActive:  user.IsActive,
			CreatedAt: user.CreatedAt,
			UpdatedAt: user.UpdatedAt,
			LastLogin: user.LastLogin,
		},
	}, nil
}

// writeSession persists a fresh session record. A session write that fails
// must fail the whole operation: a login whose session silently never
// existed is a security bug, not a degradation.
func (s *AuthService) writeSession(ctx context.Context, user *models.UserCredential, sessionID, userAgent, ipAddress string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	session := &models.Session{
		UserID:       user.ID,
		Email:        user.Email,
		SessionID:    sessionID,
		CreatedAt:    now,
		LastActivity: now,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	}
	if err := s.sessions.Create(ctx, session, s.config.SessionTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrSessionStorageUnavailable.Code, appErrors.ErrSessionStorageUnavailable.Status, "session storage not available")
	}
	return nil
}

func lockedMessage(lockedUntil, now time.Time) string {
	remaining := int(math.Ceil(lockedUntil.Sub(now).Seconds() / 60))
	if remaining < 1 {
		remaining = 1
	}
	return fmt.Sprintf("account locked, try again in %d minutes", remaining)
}
