package migrations

import "embed"

// FS contains embedded SQLite migrations for reservation storage.
//
//go:embed *.sql
var FS embed.FS
