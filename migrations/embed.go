// Package migrations embeds the schema applied by `carepoint migrate up`.
package migrations

import "embed"

// FS holds the numbered SQL migrations.
//
//go:embed *.sql
var FS embed.FS
