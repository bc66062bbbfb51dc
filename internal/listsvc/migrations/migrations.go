// Package migrations embeds the list service schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
