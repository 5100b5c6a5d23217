// Package migrations embeds the goose SQL migrations of the gateway schema.
package migrations

import "embed"

// Dir is the directory inside FS holding the migrations.
const Dir = "."

//go:embed *.sql
var FS embed.FS
