package models

import "time"

// RefreshToken represents a persisted opaque refresh token. One user may
// hold several live tokens at once (multi-device). The token value is
// random material, unrelated to JWT signing.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Token      string     `db:"token" json:"token"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	UserAgent  string     `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// MagicLinkPurpose enumerates what a magic link grants once redeemed.
type MagicLinkPurpose string

const (
	PurposeLogin         MagicLinkPurpose = "login"
	PurposeReviewSession MagicLinkPurpose = "review_session"
	PurposePasswordReset MagicLinkPurpose = "password_reset"
)

// Valid reports whether the purpose is one of the known values.
func (p MagicLinkPurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeReviewSession, PurposePasswordReset:
		return true
	}
	return false
}

// MagicLinkToken represents a single-use, time-boxed login token. The used
// flag transitions false to true exactly once.
type MagicLinkToken struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Token     string           `db:"token" json:"token"`
	Purpose   MagicLinkPurpose `db:"purpose" json:"purpose"`
	SessionID *string          `db:"session_id" json:"session_id,omitempty"`
	ExpiresAt time.Time        `db:"expires_at" json:"expires_at"`
	Used      bool             `db:"used" json:"used"`
	UsedAt    *time.Time       `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
