package domain

import (
	"errors"
	"time"
)

// User is the identity aggregate behind authentication.
type User struct {
	ID       string
	Username string
	// Email is optional; empty means none. Unique only among verified accounts.
	Email          string
	HashedPassword string
	EmailVerified  bool
	// LastRefreshJTI is the id of the single refresh token currently accepted for this user; empty means none.
	LastRefreshJTI string
	AvatarURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasEmail reports whether the user has an email address on record.
func (u *User) HasEmail() bool {
	return u.Email != ""
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.HashedPassword == "" {
		return errors.New("hashed password is required")
	}
	if u.EmailVerified && u.Email == "" {
		return errors.New("email must be set when verified")
	}
	return nil
}
