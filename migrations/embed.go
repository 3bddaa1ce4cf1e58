// Package migrations embeds the SQL schema migrations for the storefront
// order and review service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
