package database

import "embed"

// MigrationFS holds the SQL migrations applied by cmd/workloadctl.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
