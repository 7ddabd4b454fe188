// Package migrations holds the goose SQL migrations of the harvester schema
// (sources, books and their links, run cursors, failure records, runs).
//
// Files are named YYYYMMDDHHMMSS_description.sql and applied in order by
// db.Migrate.
package migrations

import "embed"

// FS contains every migration file of this directory.
//
//go:embed *.sql
var FS embed.FS
