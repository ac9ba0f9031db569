package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"expenses-tracker/backend/internal/user/domain"
)

// dialect captures the differences between the SQL backends.
type dialect interface {
	// rebind rewrites ? placeholders into the backend's bind syntax.
	rebind(query string) string
	// lockClause is appended to row-locking selects.
	lockClause() string
	isUniqueViolation(err error) bool
}

// SQLUnitOfWork is a UnitOfWork over database/sql. Each WithTransaction call runs in its own *sql.Tx.
type SQLUnitOfWork struct {
	db      *sql.DB
	dialect dialect
}

// WithTransaction implements UnitOfWork.
func (u *SQLUnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &sqlRepository{tx: tx, dialect: u.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, hashed_password, email_verified, last_refresh_jti, avatar_url, created_at, updated_at`

type sqlRepository struct {
	tx      *sql.Tx
	dialect dialect
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *sqlRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByIDForUpdate locks the row until the transaction ends where the backend supports row locks.
func (r *sqlRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`+r.dialect.lockClause(), id)
}

func (r *sqlRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetByEmail returns the verified user with email, or nil. Unverified rows never match.
func (r *sqlRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND email_verified = ?`, email, true)
}

// Create inserts u. The user must have ID set; it is not assigned by this method.
func (r *sqlRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.tx.ExecContext(ctx, r.dialect.rebind(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, nullString(u.Email), u.HashedPassword, u.EmailVerified,
		nullString(u.LastRefreshJTI), nullString(u.AvatarURL), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return r.mapError(err)
}

// Update overwrites every mutable column of u. Missing rows are ignored.
func (r *sqlRepository) Update(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.tx.ExecContext(ctx, r.dialect.rebind(
		`UPDATE users SET username = ?, email = ?, hashed_password = ?, email_verified = ?,
			last_refresh_jti = ?, avatar_url = ?, updated_at = ? WHERE id = ?`),
		u.Username, nullString(u.Email), u.HashedPassword, u.EmailVerified,
		nullString(u.LastRefreshJTI), nullString(u.AvatarURL), toMillis(u.UpdatedAt), u.ID,
	)
	return r.mapError(err)
}

func (r *sqlRepository) Delete(ctx context.Context, id string) error {
	_, err := r.tx.ExecContext(ctx, r.dialect.rebind(`DELETE FROM users WHERE id = ?`), id)
	return err
}

func (r *sqlRepository) UpdateLastRefreshJTI(ctx context.Context, userID, jti string, at time.Time) error {
	_, err := r.tx.ExecContext(ctx, r.dialect.rebind(
		`UPDATE users SET last_refresh_jti = ?, updated_at = ? WHERE id = ?`),
		nullString(jti), toMillis(at), userID,
	)
	return err
}

func (r *sqlRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	row := r.tx.QueryRowContext(ctx, r.dialect.rebind(query), args...)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *sqlRepository) mapError(err error) error {
	if err == nil {
		return nil
	}
	if r.dialect.isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u                        domain.User
		email, jti, avatar       sql.NullString
		createdMillis, updMillis int64
	)
	if err := row.Scan(&u.ID, &u.Username, &email, &u.HashedPassword, &u.EmailVerified,
		&jti, &avatar, &createdMillis, &updMillis); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.LastRefreshJTI = jti.String
	u.AvatarURL = avatar.String
	u.CreatedAt = fromMillis(createdMillis)
	u.UpdatedAt = fromMillis(updMillis)
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// toMillis stores timestamps as unix milliseconds so both backends share one representation.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// questionToDollar rewrites each ? into $1, $2, ... in order.
func questionToDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
