// Package db provides the embedded database migrations.
package db

import "embed"

// Migrations holds the versioned SQL files under migrations/, in the
// golang-migrate naming scheme.
//
//go:embed migrations/*.sql
var Migrations embed.FS
