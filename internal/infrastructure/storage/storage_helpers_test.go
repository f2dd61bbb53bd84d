package storage_test

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// sqlmockOpen returns a raw sqlmock-backed *sql.DB, grounded on the
// teacher's newBunDBWithMock (api/grpc/interceptors_test.go) but split from
// the bun.DB wrapping so migrate_test.go can reuse the driver without
// registering repository models.
func sqlmockOpen(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// newBunDBWithMock wraps a sqlmock driver in a bun.DB, the way the teacher's
// interceptors_test.go does for its repository tests.
func newBunDBWithMock(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := sqlmockOpen(t)
	bunDB := bun.NewDB(db, pgdialect.New())
	return bunDB, mock
}
