// Package migrations embeds the goose SQL migrations so that the binary can
// bring a fresh database up to date without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
