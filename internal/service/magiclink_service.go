package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"go.uber.org/zap"

	"github.com/peerit/auth-service/internal/models"
	appErrors "github.com/peerit/auth-service/pkg/errors"
)

type magicLinkUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.UserCredential, error)
	FindByID(ctx context.Context, id string) (*models.UserCredential, error)
	Create(ctx context.Context, user *models.UserCredential) error
}

type magicLinkTokenStore interface {
	CreateMagicLinkToken(ctx context.Context, token *models.MagicLinkToken) error
	FindMagicLinkToken(ctx context.Context, token string) (*models.MagicLinkToken, error)
	ConsumeMagicLinkToken(ctx context.Context, id string, usedAt time.Time) (bool, error)
}

// MagicLinkConfig defines configuration for magic-link issuance.
type MagicLinkConfig struct {
	Expiry      time.Duration
	FrontendURL string
	BcryptCost  int
}

// MagicLinkService issues and redeems single-use login links. Issuing for an
// unknown email auto-provisions the account: the link itself proves control
// of the mailbox, which is the only identity this service cares about.
type MagicLinkService struct {
	users     magicLinkUserStore
	tokens    magicLinkTokenStore
	issuer    *TokenService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    MagicLinkConfig
}

// NewMagicLinkService constructs a MagicLinkService instance.
func NewMagicLinkService(users magicLinkUserStore, tokens magicLinkTokenStore, issuer *TokenService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config MagicLinkConfig) *MagicLinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MagicLinkService{
		users:     users,
		tokens:    tokens,
		issuer:    issuer,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
	}
}

// Request validates an issuance request and routes it by email.
func (s *MagicLinkService) Request(ctx context.Context, req models.MagicLinkRequest) (*models.IssuedMagicLink, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid magic link payload")
	}
	return s.CreateForEmail(ctx, req.Email, models.MagicLinkPurpose(req.Purpose), req.SessionID)
}

// CreateForEmail issues a magic link for the given email, creating the
// account first if it does not exist yet.
func (s *MagicLinkService) CreateForEmail(ctx context.Context, email string, purpose models.MagicLinkPurpose, sessionID string) (*models.IssuedMagicLink, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
		}
		user, err = s.provisionUser(ctx, email)
		if err != nil {
			return nil, err
		}
	}
	return s.issue(ctx, user, purpose, sessionID)
}

// CreateForUser issues a magic link for an existing user id.
func (s *MagicLinkService) CreateForUser(ctx context.Context, userID string, purpose models.MagicLinkPurpose, sessionID string) (*models.IssuedMagicLink, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUserNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	return s.issue(ctx, user, purpose, sessionID)
}

// ValidateAndConsume redeems a magic-link token. Redemption is at-most-once:
// the consume step is a guarded state transition, so of any number of
// concurrent redeemers exactly one succeeds.
func (s *MagicLinkService) ValidateAndConsume(ctx context.Context, token string) (*models.UserCredential, error) {
	stored, err := s.tokens.FindMagicLinkToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordMagicLinkRedemption("invalid")
			return nil, appErrors.Clone(appErrors.ErrInvalidMagicLink, "invalid magic link")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch magic link")
	}

	now := time.Now().UTC()
	if stored.Used {
		s.metrics.RecordMagicLinkRedemption("already_used")
		return nil, appErrors.Clone(appErrors.ErrMagicLinkAlreadyUsed, "magic link already used")
	}
	if now.After(stored.ExpiresAt) {
		s.metrics.RecordMagicLinkRedemption("expired")
		return nil, appErrors.Clone(appErrors.ErrMagicLinkExpired, "magic link expired")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidMagicLink, "invalid magic link")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrAccountInactive, "account is inactive")
	}
	if user.LockedNow(now) {
		return nil, appErrors.Clone(appErrors.ErrAccountLocked, lockedMessage(*user.LockedUntil, now))
	}

	consumed, err := s.tokens.ConsumeMagicLinkToken(ctx, stored.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume magic link")
	}
	if !consumed {
		s.metrics.RecordMagicLinkRedemption("already_used")
		return nil, appErrors.Clone(appErrors.ErrMagicLinkAlreadyUsed, "magic link already used")
	}

	s.metrics.RecordMagicLinkRedemption("success")
	return user, nil
}

func (s *MagicLinkService) issue(ctx context.Context, user *models.UserCredential, purpose models.MagicLinkPurpose, sessionID string) (*models.IssuedMagicLink, error) {
	if purpose == "" {
		purpose = models.PurposeLogin
	}
	if !purpose.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown magic link purpose %q", purpose))
	}

	value, err := s.issuer.NewMagicLinkTokenValue()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create magic link token")
	}

	token := &models.MagicLinkToken{
		UserID:    user.ID,
		Token:     value,
		Purpose:   purpose,
		ExpiresAt: time.Now().UTC().Add(s.config.Expiry),
	}
	if sessionID != "" {
		token.SessionID = &sessionID
	}
	if err := s.tokens.CreateMagicLinkToken(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist magic link token")
	}

	s.metrics.RecordMagicLinkIssued(string(purpose))
	s.logger.Info("magic link issued",
		zap.String("user_id", user.ID),
		zap.String("purpose", string(purpose)),
		zap.Time("expires_at", token.ExpiresAt),
	)
	// Delivery is out of band; the full link is only visible at debug level.
	s.logger.Debug("magic link url", zap.String("magic_link", s.linkURL(value)))

	return &models.IssuedMagicLink{
		Token:     value,
		UserID:    user.ID,
		ExpiresAt: token.ExpiresAt,
		MagicLink: s.linkURL(value),
	}, nil
}

// provisionUser creates an account for a first-seen email. The account gets
// an unguessable random password so it is reachable only through magic
// links until the user sets one.
func (s *MagicLinkService) provisionUser(ctx context.Context, email string) (*models.UserCredential, error) {
	seed, err := s.issuer.NewMagicLinkTokenValue()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(seed), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.UserCredential{
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("auto-provisioned account for magic link", zap.String("user_id", user.ID))
	return user, nil
}

func (s *MagicLinkService) linkURL(token string) string {
	return fmt.Sprintf("%s/magic-link?token=%s", s.config.FrontendURL, url.QueryEscape(token))
}
