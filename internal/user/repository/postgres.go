package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// NewPostgresUnitOfWork returns a UnitOfWork over a Postgres pool opened with db.Open.
// GetByIDForUpdate issues SELECT ... FOR UPDATE.
func NewPostgresUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db, dialect: postgresDialect{}}
}

type postgresDialect struct{}

func (postgresDialect) rebind(query string) string { return questionToDollar(query) }

func (postgresDialect) lockClause() string { return " FOR UPDATE" }

func (postgresDialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
