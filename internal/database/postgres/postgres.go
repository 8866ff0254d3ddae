// Package postgres stores visitors, face enrollments and check-ins in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database"
	_ "github.com/lib/pq"
)

const connectTimeout = 10 * time.Second

// ErrDirtySchema is returned when a previous migration failed halfway.
var ErrDirtySchema = errors.New("database schema is dirty, fix it and force the version with the migrate tool")

// Pool is the desk's PostgreSQL connection pool.
type Pool struct {
	db  *sql.DB
	url string // migrations open their own connection
}

var (
	globalPool *Pool
	poolMu     sync.RWMutex
)

// NewPool opens a pool sized from cfg and pings the server.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	// Kiosks sit idle most of the day.
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db, url: cfg.URL}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

// SetGlobalPool sets the global pool instance and registers the repositories
// as the postgres storage backend.
func SetGlobalPool(p *Pool) {
	poolMu.Lock()
	globalPool = p
	poolMu.Unlock()

	database.RegisterPostgresBackend(
		func() database.VisitorWriter { return NewVisitorRepository(p) },
		func() database.EnrollmentWriter { return NewEnrollmentRepository(p) },
		func() database.CheckInWriter { return NewCheckInRepository(p) },
	)
}

// GetGlobalPool returns the global pool instance.
func GetGlobalPool() *Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return globalPool
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Initialize connects, brings the schema to the latest embedded version and
// registers the repositories as the active storage backend.
func Initialize(ctx context.Context, cfg *config.DatabaseConfig) error {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	status, err := pool.MigrationStatus(ctx)
	if err != nil {
		pool.Close()
		return err
	}
	if status.Dirty {
		pool.Close()
		return fmt.Errorf("version %d: %w", status.Version, ErrDirtySchema)
	}

	SetGlobalPool(pool)
	return nil
}
