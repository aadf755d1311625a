// Package migrations embeds the schema files applied when the state
// database is opened.
package migrations

import "embed"

// FS holds the .sql files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
