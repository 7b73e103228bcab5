package migrations

import "embed"

// FS holds the saga and transfer history migrations.
//
//go:embed *.sql
var FS embed.FS
