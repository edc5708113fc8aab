// Package migrations holds the Postgres schema applied by `mearth migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
