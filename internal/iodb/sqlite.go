package iodb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gnames/gncity/pkg/config"
	_ "modernc.org/sqlite"
)

// SQLiteOperator implements gncity.Operator for a SQLite city database.
type SQLiteOperator struct {
	maxConns int
	db       *sql.DB
}

// NewSQLiteOperator creates a new SQLite operator (without opening).
func NewSQLiteOperator(maxConns int) *SQLiteOperator {
	if maxConns < 1 {
		maxConns = 10
	}
	return &SQLiteOperator{maxConns: maxConns}
}

// DSN returns a modernc DSN with WAL journal and a busy timeout, so
// concurrent readers and a writer do not fail on locks.
func DSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(off)",
		path,
	)
}

// Connect opens the database file at cfg.Path.
func (s *SQLiteOperator) Connect(
	ctx context.Context,
	cfg *config.DatabaseConfig,
) error {
	if cfg.Path == "" {
		return SQLiteOpenError("", fmt.Errorf("database path is empty"))
	}

	db, err := sql.Open(DriverSQLite, DSN(cfg.Path))
	if err != nil {
		return SQLiteOpenError(cfg.Path, err)
	}
	db.SetMaxOpenConns(s.maxConns)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return SQLiteOpenError(cfg.Path, err)
	}

	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteOperator) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the database handle.
func (s *SQLiteOperator) DB() *sql.DB {
	return s.db
}

// Driver returns "sqlite".
func (s *SQLiteOperator) Driver() string {
	return DriverSQLite
}

// TableExists checks if a table exists.
func (s *SQLiteOperator) TableExists(
	ctx context.Context,
	tableName string,
) (bool, error) {
	if s.db == nil {
		return false, NotConnectedError()
	}

	q := "SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	var n int
	if err := s.db.QueryRowContext(ctx, q, tableName).Scan(&n); err != nil {
		return false, TableExistsCheckError(tableName, err)
	}
	return n > 0, nil
}

// HasTables checks if the database has any user tables.
func (s *SQLiteOperator) HasTables(ctx context.Context) (bool, error) {
	tables, err := s.tables(ctx)
	if err != nil {
		return false, err
	}
	return len(tables) > 0, nil
}

// DropAllTables drops all user tables.
func (s *SQLiteOperator) DropAllTables(ctx context.Context) error {
	tables, err := s.tables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		q := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if _, err = s.db.ExecContext(ctx, q); err != nil {
			return DropTablesError(table, err)
		}
	}
	return nil
}

func (s *SQLiteOperator) tables(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, NotConnectedError()
	}

	q := `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, TableExistsCheckError("sqlite_master", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, TableExistsCheckError("sqlite_master", err)
		}
		res = append(res, name)
	}
	if err = rows.Err(); err != nil {
		return nil, TableExistsCheckError("sqlite_master", err)
	}
	return res, nil
}
