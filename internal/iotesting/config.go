// Package iotesting provides shared test utilities for integration tests.
// This is an internal package for test infrastructure only.
package iotesting

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gnames/gncity/pkg/config"
)

const (
	// TestDatabaseName is the database name used for all integration tests.
	// This ensures tests never accidentally run against production databases.
	TestDatabaseName = "gncity_test"
)

// GetTestConfig returns a configuration suitable for PostgreSQL
// integration tests. Connection settings can be changed with
// GNCITY_DATABASE_* environment variables, the database name is always
// TestDatabaseName.
//
// Usage in integration tests:
//
//	func TestSomething(t *testing.T) {
//	    if testing.Short() {
//	        t.Skip("Skipping integration test")
//	    }
//	    cfg := iotesting.GetTestConfig()
//	    // ... use cfg for database operations
//	}
func GetTestConfig() *config.Config {
	cfg := config.New()

	var opts []config.Option
	if s := os.Getenv("GNCITY_DATABASE_HOST"); s != "" {
		opts = append(opts, config.OptDatabaseHost(s))
	}
	if s := os.Getenv("GNCITY_DATABASE_PORT"); s != "" {
		if port, err := strconv.Atoi(s); err == nil {
			opts = append(opts, config.OptDatabasePort(port))
		}
	}
	if s := os.Getenv("GNCITY_DATABASE_USER"); s != "" {
		opts = append(opts, config.OptDatabaseUser(s))
	}
	if s := os.Getenv("GNCITY_DATABASE_PASSWORD"); s != "" {
		opts = append(opts, config.OptDatabasePassword(s))
	}
	opts = append(opts,
		config.OptDatabaseDriver("postgres"),
		config.OptDatabaseDatabase(TestDatabaseName),
	)
	cfg.Update(opts)

	return cfg
}

// GetTestDatabaseConfig returns only the database configuration for tests.
func GetTestDatabaseConfig() *config.DatabaseConfig {
	cfg := GetTestConfig()
	return &cfg.Database
}

// SQLiteConfig returns a configuration for pipeline tests over a SQLite
// city database at dbPath. Home, staging and output directories live in
// t.TempDir(), pools are small.
func SQLiteConfig(t *testing.T, dbPath string, opts ...config.Option) *config.Config {
	t.Helper()

	home := t.TempDir()
	cfg := config.New()
	base := []config.Option{
		config.OptHomeDir(home),
		config.OptDatabaseDriver("sqlite"),
		config.OptDatabasePath(dbPath),
		config.OptDatabaseBatchSize(50),
		config.OptExportMaxThreads(4),
		config.OptExportMinThreads(2),
		config.OptExportQueueSize(16),
		config.OptExportCacheBackend("sqlite"),
		config.OptExportObjectCache(4, 256),
		config.OptExportGeometryCache(4, 256),
		config.OptExportOutput(filepath.Join(home, "out", "export.jsonl")),
	}
	cfg.Update(append(base, opts...))
	return cfg
}
