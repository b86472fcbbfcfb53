package migrations

import "embed"

// FS contains embedded SQLite migrations for the idempotency ledger.
//
//go:embed *.sql
var FS embed.FS
