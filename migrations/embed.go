// Package migrations embeds the ledger schema migrations so the binaries
// and the integration tests apply the same files.
package migrations

import "embed"

// FS holds the numbered golang-migrate files
//
//go:embed *.sql
var FS embed.FS
