// Package migrations embeds the versioned postgres schema so the server and
// the migrate CLI can apply it without shipping the SQL files separately.
package migrations

import "embed"

// FS holds the golang-migrate up/down pairs.
//
//go:embed *.sql
var FS embed.FS
