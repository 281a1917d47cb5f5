package models

import "time"

// UserCredential represents an account stored in the users table. Accounts
// are never hard-deleted; deactivation and lockout are soft states.
type UserCredential struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"-"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// LockedNow reports whether the account is locked at the given instant.
func (u *UserCredential) LockedNow(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
