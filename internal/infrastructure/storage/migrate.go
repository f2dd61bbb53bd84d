package storage

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

// Migrator wraps bun's migrate.Migrator, grounded on the teacher's own
// Migrator (storage/migrate.go) with the same Init/Up/Down shape; it has no
// Status method.
type Migrator struct {
	migrator *migrate.Migrator
	log      *logger.Logger
}

// NewMigrator discovers the schema migrations in migrationsFS and returns a
// Migrator bound to db.
func NewMigrator(db *bun.DB, migrationsFS fs.FS, log *logger.Logger) (*Migrator, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(migrationsFS); err != nil {
		return nil, fmt.Errorf("storage: discover migrations: %w", err)
	}
	return &Migrator{migrator: migrate.NewMigrator(db, migrations), log: log}, nil
}

// Init creates bun's migration-tracking tables.
func (m *Migrator) Init(ctx context.Context) error {
	return m.migrator.Init(ctx)
}

// Up runs every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	group, err := m.migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	if group.IsZero() {
		m.log.Info("storage: no new migrations to run")
		return nil
	}
	m.log.Info("storage: migrations applied", "group", group.ID, "migrations", fmt.Sprintf("%v", group.Migrations))
	return nil
}

// Down rolls back the last migration group.
func (m *Migrator) Down(ctx context.Context) error {
	group, err := m.migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("storage: rollback: %w", err)
	}
	if group.IsZero() {
		m.log.Info("storage: no migrations to rollback")
		return nil
	}
	m.log.Info("storage: migration rolled back", "group", group.ID)
	return nil
}
