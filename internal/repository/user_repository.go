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

const userColumns = `id, email, password_hash, is_active, failed_login_attempts, locked_until, last_login, created_at, updated_at`

// UserRepository provides database access to user credentials.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a credential by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.UserCredential, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.UserCredential
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a credential by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.UserCredential, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.UserCredential
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new credential and returns the stored record.
func (r *UserRepository) Create(ctx context.Context, user *models.UserCredential) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, password_hash, is_active, failed_login_attempts, created_at, updated_at) VALUES (:id, :email, :password_hash, :is_active, :failed_login_attempts, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// IncrementFailedLogins bumps the failed-attempt counter in a single
// storage-side statement and returns the new count. Concurrent wrong
// password attempts each observe a distinct count; nothing is lost to a
// read-modify-write race in the application.
func (r *UserRepository) IncrementFailedLogins(ctx context.Context, id string) (int, error) {
	const query = `UPDATE users SET failed_login_attempts = failed_login_attempts + 1, updated_at = $2 WHERE id = $1 RETURNING failed_login_attempts`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, query, id, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("increment failed logins: %w", err)
	}
	return attempts, nil
}

// LockAccount sets locked_until for a user.
func (r *UserRepository) LockAccount(ctx context.Context, id string, until time.Time) error {
	const query = `UPDATE users SET locked_until = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, until, time.Now().UTC()); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	return nil
}

// ResetFailedLogins clears the failure counter and any lock, and stamps
// last_login. Called on every successful authentication.
func (r *UserRepository) ResetFailedLogins(ctx context.Context, id string, lastLogin time.Time) error {
	const query = `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lastLogin); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
