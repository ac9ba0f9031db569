package repository

import (
	"context"
	"errors"
	"time"

	"expenses-tracker/backend/internal/user/domain"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint (id, username, or verified email).
var ErrDuplicate = errors.New("repository: duplicate user")

// Repository is the user store bound to one transaction. Lookups return nil, nil for missing rows.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByIDForUpdate is GetByID plus a row lock held until the transaction ends, where the store supports it.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetByEmail matches verified emails only.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
	// UpdateLastRefreshJTI sets the user's current refresh token id and stamps updated_at with at.
	// An empty jti clears it.
	UpdateLastRefreshJTI(ctx context.Context, userID, jti string, at time.Time) error
}

// UnitOfWork runs fn inside one transaction. It commits when fn returns nil and rolls back when fn
// returns an error or panics; the panic is re-raised after rollback.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
