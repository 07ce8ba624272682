// Package migrations embeds the SQL schema migrations applied with goose.
package migrations

import "embed"

// Migrations holds the embedded migration files.
//
//go:embed *.sql
var Migrations embed.FS
