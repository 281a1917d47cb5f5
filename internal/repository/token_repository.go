package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerit/auth-service/internal/models"
)

// TokenRepository persists refresh tokens and magic-link tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// CreateRefreshToken persists a refresh token entry.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, revoked_at, last_used_at, ip_address, user_agent, created_at) VALUES (:id, :user_id, :token, :expires_at, :revoked, :revoked_at, :last_used_at, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by its opaque value.
func (r *TokenRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, revoked, revoked_at, last_used_at, ip_address, user_agent, created_at FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// TouchRefreshToken stamps last_used_at.
func (r *TokenRepository) TouchRefreshToken(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, usedAt); err != nil {
		return fmt.Errorf("touch refresh token: %w", err)
	}
	return nil
}

// RevokeRefreshToken marks a token as revoked. Idempotent.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all live refresh tokens for a user.
func (r *TokenRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteStaleRefreshTokens removes expired or revoked rows. Storage
// hygiene only; expiry and revocation are enforced at read time.
func (r *TokenRepository) DeleteStaleRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked = TRUE`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateMagicLinkToken persists a magic-link token entry.
func (r *TokenRepository) CreateMagicLinkToken(ctx context.Context, token *models.MagicLinkToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO magic_link_tokens (id, user_id, token, purpose, session_id, expires_at, used, used_at, created_at) VALUES (:id, :user_id, :token, :purpose, :session_id, :expires_at, :used, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create magic link token: %w", err)
	}
	return nil
}

// FindMagicLinkToken returns a magic-link token by its opaque value.
func (r *TokenRepository) FindMagicLinkToken(ctx context.Context, token string) (*models.MagicLinkToken, error) {
	const query = `SELECT id, user_id, token, purpose, session_id, expires_at, used, used_at, created_at FROM magic_link_tokens WHERE token = $1 LIMIT 1`
	var mt models.MagicLinkToken
	if err := r.db.GetContext(ctx, &mt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find magic link token: %w", err)
	}
	return &mt, nil
}

// ConsumeMagicLinkToken marks a token used. The guard on used = FALSE makes
// redemption at-most-once: under concurrent attempts exactly one caller
// sees consumed = true, the rest see zero rows updated.
func (r *TokenRepository) ConsumeMagicLinkToken(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	const query = `UPDATE magic_link_tokens SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("consume magic link token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume magic link token: %w", err)
	}
	return n == 1, nil
}

// DeleteExpiredMagicLinkTokens removes expired or already-used rows.
func (r *TokenRepository) DeleteExpiredMagicLinkTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM magic_link_tokens WHERE expires_at < $1 OR used = TRUE`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired magic link tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
