package migrations

import "embed"

// FS contains embedded SQLite migrations for coaching storage.
//
//go:embed *.sql
var FS embed.FS
