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

// Register creates a user and starts its first session. Username collisions are reported before
// email collisions; only verified addresses collide.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (pair *TokenPair, err error) {
	const op = "service.Register"
	log := s.log.With(slog.String("op", op), slog.String("username", username))
	var userID string
	ctx, finish := s.start(ctx, "register")
	defer func() { finish(userID, err) }()

	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidCredentials)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, jti := uuid.NewString(), security.NewJTI()
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		existing, err := repo.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: username %q is taken", ErrUserAlreadyExists, username)
		}
		if email != "" {
			existing, err = repo.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w: email %q is taken", ErrUserAlreadyExists, email)
			}
		}

		now := s.tokens.Now().UTC()
		u := &domain.User{
			ID:             id,
			Username:       username,
			Email:          email,
			HashedPassword: hash,
			LastRefreshJTI: jti,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.Create(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: username %q or email is taken", ErrUserAlreadyExists, username)
			}
			return err
		}
		pair, err = s.issuePair(id, jti)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			log.Warn("user already exists", slog.Any("error", err))
			return nil, err
		}
		log.Error("failed to register user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userID = id
	log.Info("user registered", slog.String("user_id", userID))
	return pair, nil
}

// Login verifies the password and starts a new session. Any earlier refresh token stops working.
func (s *AuthService) Login(ctx context.Context, username, password string) (pair *TokenPair, err error) {
	const op = "service.Login"
	username = strings.TrimSpace(username)
	log := s.log.With(slog.String("op", op), slog.String("username", username))
	var userID string
	ctx, finish := s.start(ctx, "login")
	defer func() { finish(userID, err) }()

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		userID = u.ID
		if !s.hasher.Verify(password, u.HashedPassword) {
			return ErrInvalidCredentials
		}
		jti := security.NewJTI()
		if err := repo.UpdateLastRefreshJTI(ctx, u.ID, jti, s.tokens.Now().UTC()); err != nil {
			return err
		}
		pair, err = s.issuePair(u.ID, jti)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("login rejected", slog.Any("error", err))
			return nil, err
		}
		log.Error("failed to login user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("user_id", userID))
	return pair, nil
}

// Refresh rotates a refresh token: the presented jti must be the user's current one, it is revoked,
// and a new pair bound to a fresh jti is returned. Of two concurrent refreshes of one token at most one wins.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	const op = "service.Refresh"
	log := s.log.With(slog.String("op", op))
	var userID string
	ctx, finish := s.start(ctx, "refresh")
	defer func() { finish(userID, err) }()

	claims, err := s.claimsFor(refreshToken, security.PurposeRefresh)
	if err != nil {
		log.Warn("refresh token rejected", slog.Any("error", err))
		return nil, err
	}
	userID = claims.Subject
	if s.revoked.IsBlacklisted(ctx, claims.ID) {
		log.Warn("refresh token revoked", slog.String("user_id", userID))
		return nil, ErrInvalidCredentials
	}

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, claims.Subject)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if u.LastRefreshJTI == "" || u.LastRefreshJTI != claims.ID {
			return ErrInvalidCredentials
		}
		jti := security.NewJTI()
		if err := repo.UpdateLastRefreshJTI(ctx, u.ID, jti, s.tokens.Now().UTC()); err != nil {
			return err
		}
		pair, err = s.issuePair(u.ID, jti)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("refresh rejected", slog.String("user_id", userID), slog.Any("error", err))
			return nil, err
		}
		log.Error("failed to refresh session", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.revoke(ctx, claims)
	log.Info("session refreshed", slog.String("user_id", userID))
	return pair, nil
}

// Logout revokes the refresh token and clears the user's current session.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	const op = "service.Logout"
	log := s.log.With(slog.String("op", op))
	var userID string
	ctx, finish := s.start(ctx, "logout")
	defer func() { finish(userID, err) }()

	claims, err := s.claimsFor(refreshToken, security.PurposeRefresh)
	if err != nil {
		log.Warn("refresh token rejected", slog.Any("error", err))
		return err
	}
	userID = claims.Subject
	s.revoke(ctx, claims)

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, claims.Subject)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		return repo.UpdateLastRefreshJTI(ctx, u.ID, "", s.tokens.Now().UTC())
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("logout rejected", slog.Any("error", err))
			return err
		}
		log.Error("failed to logout user", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// Authenticate verifies an access token and returns its subject.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (string, error) {
	_, span := s.tracer.Start(ctx, "auth.authenticate")
	defer span.End()

	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return "", err
	}
	if claims.Purpose != security.PurposeAccess {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

// claimsFor decodes token and requires purpose. Codec errors pass through unchanged.
func (s *AuthService) claimsFor(token string, purpose security.Purpose) (*security.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: expected a %s token", ErrInvalidCredentials, purpose)
	}
	return claims, nil
}

func isDomainError(err error) bool {
	switch Kind(err) {
	case "", "internal":
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
