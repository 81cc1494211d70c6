package plugins

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB is the DB plugin adapter backed by a pgx connection pool,
// grounded on the teacher's database.go Config.DBPool/Acquire usage.
type PostgresDB struct {
	dsn  string
	pool *pgxpool.Pool
}

// NewPostgresDB constructs a PostgresDB bound to dsn; the pool is opened on
// Connect rather than here, matching the plugin lifecycle's explicit
// Connect/Close pairing (spec.md §4.4).
func NewPostgresDB(dsn string) *PostgresDB {
	return &PostgresDB{dsn: dsn}
}

// Connect opens the pool.
func (p *PostgresDB) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	p.pool = pool
	return nil
}

// Close releases the pool.
func (p *PostgresDB) Close(ctx context.Context) error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Execute runs a statement against the pool, discarding any returned rows.
func (p *PostgresDB) Execute(ctx context.Context, query string, args ...any) error {
	if p.pool == nil {
		return fmt.Errorf("postgres plugin: Execute called before Connect")
	}
	_, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres exec: %w", err)
	}
	return nil
}
