// Package storage implements the persistent schema of §6.3 with
// uptrace/bun over PostgreSQL, the same driver stack the teacher uses
// for its own storage package (bun + pgdialect + pgdriver, connected via
// a DSN string through database/sql's Connector interface).
package storage

import (
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Connect opens a bun.DB bound to dsn, grounded on the teacher's own
// pgdriver.NewConnector/bun.NewDB pairing (testutil/database.go). When
// debug is set, every query is logged via bundebug, the same toggle the
// teacher exposes through its own Database.Debug config field.
func Connect(dsn string, debug bool) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(5*time.Second),
	)
	sqldb := sql.OpenDB(connector)
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	return db, nil
}
