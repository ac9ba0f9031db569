package db

import "embed"

// MigrationFS embeds the SQL migrations for every supported backend, one directory per dialect
// (migrations/postgres, migrations/sqlite). Used by the migrate runner and cmd/migrate.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS
