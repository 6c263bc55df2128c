package iocache

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// backend is the staging storage of cache tables. Queries use $N
// placeholders, backends rebind them for their dialect.
type backend interface {
	driver() string
	exec(ctx context.Context, q string, args ...any) error
	query(ctx context.Context, q string, args ...any) (*sql.Rows, error)
	queryRow(ctx context.Context, q string, args ...any) *sql.Row

	// copyRows appends rows to a table.
	copyRows(ctx context.Context, table string, cols []string, rows [][]any) error

	// createTable returns DDL prefix of a staging table.
	createTable() string

	// serial is the column definition of an append-only sequence.
	serial() string

	close() error
}

// poolProvider is implemented by the PostgreSQL operator.
type poolProvider interface {
	Pool() *pgxpool.Pool
}

// pgBackend keeps staging tables as UNLOGGED tables of the exported
// PostgreSQL database.
type pgBackend struct {
	db   *sql.DB
	pool *pgxpool.Pool
}

func (b *pgBackend) driver() string { return iodb.DriverPostgres }

func (b *pgBackend) exec(ctx context.Context, q string, args ...any) error {
	_, err := b.db.ExecContext(ctx, q, args...)
	return err
}

func (b *pgBackend) query(
	ctx context.Context, q string, args ...any,
) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, q, args...)
}

func (b *pgBackend) queryRow(
	ctx context.Context, q string, args ...any,
) *sql.Row {
	return b.db.QueryRowContext(ctx, q, args...)
}

func (b *pgBackend) copyRows(
	ctx context.Context,
	table string,
	cols []string,
	rows [][]any,
) error {
	_, err := b.pool.CopyFrom(
		ctx,
		pgx.Identifier{table},
		cols,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (b *pgBackend) createTable() string {
	return "CREATE UNLOGGED TABLE IF NOT EXISTS"
}

func (b *pgBackend) serial() string {
	return "seq BIGSERIAL PRIMARY KEY"
}

// the pool belongs to the operator
func (b *pgBackend) close() error { return nil }

// sqlBackend keeps staging tables in a SQLite database, either the
// exported one or a file of its own in the staging directory.
type sqlBackend struct {
	db *sql.DB

	// path is set when the backend owns a staging file.
	path string
}

func openSQLiteBackend(path string) (*sqlBackend, error) {
	db, err := sql.Open(iodb.DriverSQLite, iodb.DSN(path))
	if err != nil {
		return nil, err
	}
	// a single writer, SQLite serialises them anyway
	db.SetMaxOpenConns(1)
	return &sqlBackend{db: db, path: path}, nil
}

func (b *sqlBackend) driver() string { return iodb.DriverSQLite }

func (b *sqlBackend) exec(ctx context.Context, q string, args ...any) error {
	_, err := b.db.ExecContext(ctx, iodb.Rebind(iodb.DriverSQLite, q), args...)
	return err
}

func (b *sqlBackend) query(
	ctx context.Context, q string, args ...any,
) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, iodb.Rebind(iodb.DriverSQLite, q), args...)
}

func (b *sqlBackend) queryRow(
	ctx context.Context, q string, args ...any,
) *sql.Row {
	return b.db.QueryRowContext(ctx, iodb.Rebind(iodb.DriverSQLite, q), args...)
}

func (b *sqlBackend) copyRows(
	ctx context.Context,
	table string,
	cols []string,
	rows [][]any,
) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := iodb.Rebind(iodb.DriverSQLite, insertSQL(table, cols, 1))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *sqlBackend) createTable() string {
	return "CREATE TABLE IF NOT EXISTS"
}

func (b *sqlBackend) serial() string {
	return "seq INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (b *sqlBackend) close() error {
	if b.path == "" {
		return nil
	}
	err := b.db.Close()
	for _, suffix := range []string{"", "-wal", "-shm"} {
		rmErr := os.Remove(b.path + suffix)
		if rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("remove staging file: %w", rmErr)
		}
	}
	return err
}
