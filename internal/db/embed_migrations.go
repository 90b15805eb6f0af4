package db

import "embed"

// MigrationFS embeds the SQL migrations (users, sessions) applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
