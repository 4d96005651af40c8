package migrations

import "embed"

// Migrations holds the sqlite schema migration files.
//
//go:embed *.sql
var Migrations embed.FS
