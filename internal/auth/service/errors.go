package service

import (
	"errors"

	"expenses-tracker/backend/internal/email"
	"expenses-tracker/backend/internal/security"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
// security.ErrTokenExpired, security.ErrInvalidToken and email.ErrSending pass through unchanged in kind.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailAlreadyVerified = errors.New("email already verified")
)

// Kind returns a stable snake_case name for the error's category, or "internal" for anything unrecognised.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserAlreadyExists):
		return "user_already_exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailAlreadyVerified):
		return "email_already_verified"
	case errors.Is(err, security.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, security.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, email.ErrSending):
		return "email_sending"
	}
	return "internal"
}
