package migrations

import "embed"

// FS holds the ledger schema migrations.
//
//go:embed *.sql
var FS embed.FS
