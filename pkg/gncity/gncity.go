// Package gncity defines contracts between the export pipeline and its
// collaborators: the database adapter, the schema manager, the feature
// writer and the exporter itself.
package gncity

import (
	"context"
	"database/sql"

	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/feature"
)

// Operator is the database adapter. It hands out a *sql.DB so the pipeline
// can take one dedicated connection per worker.
type Operator interface {
	// Connect opens the database described by cfg.
	Connect(ctx context.Context, cfg *config.DatabaseConfig) error

	// Close releases all connections.
	Close() error

	// DB returns the connection pool, nil before Connect.
	DB() *sql.DB

	// Driver returns "postgres" or "sqlite".
	Driver() string

	// TableExists checks if a table exists in the database.
	TableExists(ctx context.Context, table string) (bool, error)

	// HasTables checks if the database has any tables.
	HasTables(ctx context.Context) (bool, error)

	// DropAllTables removes every table of the database.
	DropAllTables(ctx context.Context) error
}

// SchemaManager creates the city schema. Creation is idempotent.
type SchemaManager interface {
	Create(ctx context.Context) error
}

// FeatureWriter serialises features and links. Implementations must be
// safe for concurrent use, export workers call them in parallel.
type FeatureWriter interface {
	// WriteFeature writes one materialised feature.
	WriteFeature(f feature.Feature) error

	// WriteLink writes the resolution of a deferred reference.
	WriteLink(l feature.Link) error

	// Close flushes and closes the output.
	Close() error
}

// Exporter runs the export over all tiles of the configured grid.
type Exporter interface {
	// Export returns the result of the run. A failed run returns both the
	// result and its original cause.
	Export(ctx context.Context) (*feature.Result, error)
}
