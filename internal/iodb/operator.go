// Package iodb implements the database adapter for PostgreSQL (pgxpool)
// and SQLite (modernc.org/sqlite). This is an impure I/O package that
// implements contracts defined in pkg/gncity.
package iodb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// New creates an operator for the configured driver. maxConns bounds the
// connection pool, every export worker keeps one connection for itself.
func New(cfg *config.Config, maxConns int) (gncity.Operator, error) {
	switch cfg.Database.Driver {
	case DriverPostgres:
		return NewPgxOperator(maxConns), nil
	case DriverSQLite:
		return NewSQLiteOperator(maxConns), nil
	default:
		return nil, UnsupportedDriverError(cfg.Database.Driver)
	}
}

// PgxOperator implements gncity.Operator using pgxpool for connection
// pooling.
type PgxOperator struct {
	maxConns int32
	pool     *pgxpool.Pool
	db       *sql.DB
}

// NewPgxOperator creates a new database operator (without connecting).
func NewPgxOperator(maxConns int) *PgxOperator {
	if maxConns < 2 {
		maxConns = 10
	}
	return &PgxOperator{maxConns: int32(maxConns)}
}

// Connect establishes a connection pool to PostgreSQL. A failing ping is
// retried with exponential backoff for a few seconds before giving up.
func (p *PgxOperator) Connect(
	ctx context.Context,
	cfg *config.DatabaseConfig,
) error {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return ConnectionError(cfg.Host, cfg.Port,
			cfg.Database, cfg.User, err)
	}

	poolConfig.MaxConns = p.maxConns
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 0
	poolConfig.MaxConnIdleTime = 0

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return ConnectionError(cfg.Host, cfg.Port,
			cfg.Database, cfg.User, err)
	}

	ping := func() error {
		err := pool.Ping(ctx)
		if err != nil {
			slog.Warn("Database ping failed, retrying", "error", err)
		}
		return err
	}
	if err = backoff.Retry(ping, backoff.WithContext(newBackoff(), ctx)); err != nil {
		pool.Close()
		return ConnectionError(cfg.Host, cfg.Port,
			cfg.Database, cfg.User, err)
	}

	p.pool = pool
	p.db = stdlib.OpenDBFromPool(pool)
	return nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	b.Reset()
	return b
}

// Close releases all database connections.
func (p *PgxOperator) Close() error {
	if p.db != nil {
		_ = p.db.Close()
	}
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Pool returns the underlying pgxpool.Pool for CopyFrom.
func (p *PgxOperator) Pool() *pgxpool.Pool {
	return p.pool
}

// DB returns the pool as *sql.DB.
func (p *PgxOperator) DB() *sql.DB {
	return p.db
}

// Driver returns "postgres".
func (p *PgxOperator) Driver() string {
	return DriverPostgres
}

// TableExists checks if a table exists in the current database.
func (p *PgxOperator) TableExists(
	ctx context.Context,
	tableName string,
) (bool, error) {
	if p.pool == nil {
		return false, NotConnectedError()
	}

	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`

	var exists bool
	err := p.pool.QueryRow(ctx, query, tableName).Scan(&exists)
	if err != nil {
		return false, TableExistsCheckError(tableName, err)
	}

	return exists, nil
}

// HasTables checks if the database has any tables in the public schema.
func (p *PgxOperator) HasTables(ctx context.Context) (bool, error) {
	if p.pool == nil {
		return false, NotConnectedError()
	}

	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
		)
	`

	var hasTables bool
	err := p.pool.QueryRow(ctx, query).Scan(&hasTables)
	if err != nil {
		return false, TableExistsCheckError("public", err)
	}

	return hasTables, nil
}

// DropAllTables drops all tables in the public schema.
func (p *PgxOperator) DropAllTables(ctx context.Context) error {
	if p.pool == nil {
		return NotConnectedError()
	}

	query := `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = 'public'
	`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return TableExistsCheckError("public", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return TableExistsCheckError("public", err)
		}
		tables = append(tables, tableName)
	}

	if err := rows.Err(); err != nil {
		return TableExistsCheckError("public", err)
	}

	for _, table := range tables {
		dropSQL := fmt.Sprintf(
			"DROP TABLE IF EXISTS %s CASCADE", table)
		if _, err := p.pool.Exec(ctx, dropSQL); err != nil {
			return DropTablesError(table, err)
		}
	}

	return nil
}
