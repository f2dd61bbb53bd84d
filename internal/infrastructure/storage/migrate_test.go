package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/flowconductor/conductor/internal/infrastructure/config"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
	"github.com/flowconductor/conductor/internal/infrastructure/storage"
	"github.com/flowconductor/conductor/internal/infrastructure/storage/migrations"
)

// NewMigrator's Discover call only walks migrations.FS, so it succeeds
// against an unconnected bun.DB.
func TestNewMigrator_DiscoversMigrations(t *testing.T) {
	sqldb, _ := sqlmockOpen(t)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	log := logger.New(config.LoggingConfig{Level: "error", Format: "text"})
	m, err := storage.NewMigrator(db, migrations.FS, log)
	require.NoError(t, err)
	require.NotNil(t, m)
}
