package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors covering the authentication taxonomy.
var (
	ErrInvalidCredentials        = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrAccountLocked             = New("ACCOUNT_LOCKED", http.StatusLocked, "account is temporarily locked")
	ErrAccountInactive           = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrInvalidToken              = New("INVALID_TOKEN", http.StatusUnauthorized, "invalid or expired token")
	ErrInvalidRefreshToken       = New("INVALID_REFRESH_TOKEN", http.StatusUnauthorized, "invalid refresh token")
	ErrRefreshTokenExpired       = New("REFRESH_TOKEN_EXPIRED", http.StatusUnauthorized, "refresh token expired")
	ErrRefreshTokenRevoked       = New("REFRESH_TOKEN_REVOKED", http.StatusUnauthorized, "refresh token revoked")
	ErrInvalidMagicLink          = New("INVALID_MAGIC_LINK", http.StatusBadRequest, "invalid magic link token")
	ErrMagicLinkExpired          = New("MAGIC_LINK_EXPIRED", http.StatusBadRequest, "magic link token expired")
	ErrMagicLinkAlreadyUsed      = New("MAGIC_LINK_ALREADY_USED", http.StatusGone, "magic link token already used")
	ErrSessionNotFound           = New("SESSION_NOT_FOUND", http.StatusUnauthorized, "session not found")
	ErrSessionStorageUnavailable = New("SESSION_STORAGE_UNAVAILABLE", http.StatusServiceUnavailable, "session storage not available")
	ErrUserNotFound              = New("USER_NOT_FOUND", http.StatusNotFound, "user not found")
	ErrUnauthorized              = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation                = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal                  = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same error code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
