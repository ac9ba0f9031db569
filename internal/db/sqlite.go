package db

import (
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens the SQLite database file at path using the pure-Go modernc driver.
// The pool is limited to one connection so transactions are serialized. Caller must call Close when done.
func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
