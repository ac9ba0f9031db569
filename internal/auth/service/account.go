package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"expenses-tracker/backend/internal/security"
	"expenses-tracker/backend/internal/user/domain"
	"expenses-tracker/backend/internal/user/repository"
)

// ExternalIdentity is a user identity asserted by an external provider that has verified the email.
type ExternalIdentity struct {
	Username  string
	Email     string
	AvatarURL string
}

// ThirdPartyAuth signs in the owner of identity.Email, creating the account on first use.
func (s *AuthService) ThirdPartyAuth(ctx context.Context, identity ExternalIdentity) (pair *TokenPair, err error) {
	const op = "service.ThirdPartyAuth"
	log := s.log.With(slog.String("op", op))
	var userID string
	ctx, finish := s.start(ctx, "third_party_auth")
	defer func() { finish(userID, err) }()

	email := normalizeEmail(identity.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: external identity has no email", ErrInvalidCredentials)
	}
	username := strings.TrimSpace(identity.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	jti := security.NewJTI()
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u != nil {
			userID = u.ID
			if err := repo.UpdateLastRefreshJTI(ctx, u.ID, jti, s.tokens.Now().UTC()); err != nil {
				return err
			}
			pair, err = s.issuePair(u.ID, jti)
			return err
		}

		taken, err := repo.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if taken != nil {
			username = username + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		}
		// Unusable password: the account signs in through the provider only.
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		now := s.tokens.Now().UTC()
		u = &domain.User{
			ID:             uuid.NewString(),
			Username:       username,
			Email:          email,
			HashedPassword: hash,
			EmailVerified:  true,
			LastRefreshJTI: jti,
			AvatarURL:      identity.AvatarURL,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.Create(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: username %q is taken", ErrUserAlreadyExists, username)
			}
			return err
		}
		userID = u.ID
		pair, err = s.issuePair(u.ID, jti)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("third-party sign-in rejected", slog.Any("error", err))
			return nil, err
		}
		log.Error("failed third-party sign-in", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user signed in with external identity", slog.String("user_id", userID))
	return pair, nil
}

// GetUser returns the user's projection, served from the cache when present.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*UserView, error) {
	const op = "service.GetUser"
	ctx, span := s.tracer.Start(ctx, "auth.get_user")
	defer span.End()

	if view, ok := s.projections.get(ctx, userID); ok {
		return view, nil
	}

	var view *UserView
	err := s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		view = newUserView(u)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		s.log.Error("failed to load user", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.projections.set(ctx, view)
	return view, nil
}

// DeleteAccount removes the user and every cache entry that mentions the user id.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) (err error) {
	const op = "service.DeleteAccount"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	ctx, finish := s.start(ctx, "delete_account")
	defer func() { finish(userID, err) }()

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		return repo.Delete(ctx, u.ID)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			log.Warn("account not deleted", slog.Any("error", err))
			return err
		}
		log.Error("failed to delete account", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.projections.purge(ctx, userID)
	log.Info("account deleted")
	return nil
}

// SetAvatar stores a reference to the user's avatar image. An empty url clears it.
func (s *AuthService) SetAvatar(ctx context.Context, userID, url string) (view *UserView, err error) {
	const op = "service.SetAvatar"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	ctx, finish := s.start(ctx, "set_avatar")
	defer func() { finish(userID, err) }()

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		u.AvatarURL = strings.TrimSpace(url)
		u.UpdatedAt = s.tokens.Now().UTC()
		if err := repo.Update(ctx, u); err != nil {
			return err
		}
		view = newUserView(u)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			log.Warn("avatar not set", slog.Any("error", err))
			return nil, err
		}
		log.Error("failed to set avatar", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.projections.invalidate(ctx, userID)
	return view, nil
}

// UserUpdate lists the fields UpdateUser changes. Nil fields are left alone.
type UserUpdate struct {
	Email    *string
	Password *string
}

// UpdateUser changes the user's email and/or password. A new address must not be verified by another
// account and starts unverified. A new password ends every session, as a reset does.
func (s *AuthService) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (view *UserView, err error) {
	const op = "service.UpdateUser"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	ctx, finish := s.start(ctx, "update_user")
	defer func() { finish(userID, err) }()

	var hash string
	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, fmt.Errorf("%w: password must not be empty", ErrInvalidCredentials)
		}
		if hash, err = s.hasher.Hash(*upd.Password); err != nil {
			log.Error("failed to hash password", slog.Any("error", err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if upd.Email != nil {
			email := normalizeEmail(*upd.Email)
			if email != "" && email != u.Email {
				owner, err := repo.GetByEmail(ctx, email)
				if err != nil {
					return err
				}
				if owner != nil && owner.ID != u.ID {
					return fmt.Errorf("%w: email %q is taken", ErrUserAlreadyExists, email)
				}
				u.Email = email
				u.EmailVerified = false
			}
		}
		if hash != "" {
			u.HashedPassword = hash
			u.LastRefreshJTI = ""
		}
		u.UpdatedAt = s.tokens.Now().UTC()
		if err := repo.Update(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: email %q is taken", ErrUserAlreadyExists, u.Email)
			}
			return err
		}
		view = newUserView(u)
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("user not updated", slog.Any("error", err))
			return nil, err
		}
		log.Error("failed to update user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.projections.invalidate(ctx, userID)
	log.Info("user updated", slog.Bool("password_changed", hash != ""))
	return view, nil
}
