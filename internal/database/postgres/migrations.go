package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus is the schema version recorded by the migrator.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Latest  uint
}

// Pending reports whether embedded migrations are newer than the database.
func (s MigrationStatus) Pending() bool {
	return s.Version < s.Latest
}

// migrationSource opens the embedded migration files.
func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// latestMigration returns the highest embedded migration version.
func latestMigration() (uint, error) {
	src, err := migrationSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migration after %d: %w", v, err)
		}
		v = next
	}
}

// newMigrate opens a migrator on its own connection; closing it leaves the pool open.
func (p *Pool) newMigrate() (*migrate.Migrate, error) {
	src, err := migrationSource()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, p.url)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// runMigrate executes fn and asks the migrator to stop after the current
// migration when ctx is cancelled.
func (p *Pool) runMigrate(ctx context.Context, fn func(m *migrate.Migrate) error) error {
	m, err := p.newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	return fn(m)
}

// Migrate applies all pending migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	return p.runMigrate(ctx, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func (p *Pool) MigrateDown(ctx context.Context) error {
	return p.runMigrate(ctx, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		return nil
	})
}

// MigrationStatus returns the applied version next to the latest embedded one.
// Version is 0 when nothing has been applied yet.
func (p *Pool) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	latest, err := latestMigration()
	if err != nil {
		return MigrationStatus{}, err
	}

	var status MigrationStatus
	err = p.runMigrate(ctx, func(m *migrate.Migrate) error {
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("read migration version: %w", err)
		}
		status = MigrationStatus{Version: v, Dirty: dirty, Latest: latest}
		return nil
	})
	return status, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}
