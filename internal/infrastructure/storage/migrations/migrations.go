// Package migrations embeds the conductor's schema migrations (§6.3),
// grounded on the teacher's own migrations package, which the same
// bun/migrate.Migrations.Discover call consumes.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
