package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"expenses-tracker/backend/internal/user/domain"
)

// MemoryUnitOfWork is an in-process UnitOfWork. Transactions are fully serialized by a mutex and
// operate on a copy of the user set that replaces the committed set only when fn succeeds.
type MemoryUnitOfWork struct {
	mu    sync.Mutex
	users map[string]domain.User
}

// NewMemoryUnitOfWork returns an empty in-memory store.
func NewMemoryUnitOfWork() *MemoryUnitOfWork {
	return &MemoryUnitOfWork{users: make(map[string]domain.User)}
}

// WithTransaction implements UnitOfWork.
func (m *MemoryUnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	working := make(map[string]domain.User, len(m.users))
	for id, u := range m.users {
		working[id] = u
	}
	if err := fn(ctx, &memoryRepository{users: working}); err != nil {
		return err
	}
	m.users = working
	return nil
}

type memoryRepository struct {
	users map[string]domain.User
}

func (r *memoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// GetByIDForUpdate needs no lock beyond the transaction mutex.
func (r *memoryRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, nil
	}
	for _, u := range r.users {
		if u.EmailVerified && u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if _, ok := r.users[u.ID]; ok {
		return fmt.Errorf("%w: id %q", ErrDuplicate, u.ID)
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.users[u.ID] = *u
	return nil
}

func (r *memoryRepository) Update(ctx context.Context, u *domain.User) error {
	if _, ok := r.users[u.ID]; !ok {
		return nil
	}
	if err := u.Validate(); err != nil {
		return err
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.users[u.ID] = *u
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	delete(r.users, id)
	return nil
}

func (r *memoryRepository) UpdateLastRefreshJTI(ctx context.Context, userID, jti string, at time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return nil
	}
	u.LastRefreshJTI = jti
	u.UpdatedAt = at.UTC()
	r.users[userID] = u
	return nil
}

// checkUnique mirrors the SQL constraints: unique username, unique email among verified users.
func (r *memoryRepository) checkUnique(u *domain.User) error {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if other.Username == u.Username {
			return fmt.Errorf("%w: username %q", ErrDuplicate, u.Username)
		}
		if u.EmailVerified && other.EmailVerified && u.Email == other.Email {
			return fmt.Errorf("%w: email %q", ErrDuplicate, u.Email)
		}
	}
	return nil
}
