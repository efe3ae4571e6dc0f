// Package migrations embeds the SQL migrations applied by dbmate.
package migrations

import "embed"

// Dir is the directory of FS that holds the migration files.
const Dir = "."

//go:embed *.sql
var FS embed.FS
