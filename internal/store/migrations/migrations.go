// Package migrations embeds the SQL schema migrations for achat.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
