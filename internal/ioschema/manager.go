// Package ioschema implements SchemaManager interface for the city
// database. This is an impure I/O package that wraps GORM AutoMigrate on
// PostgreSQL and generated DDL on SQLite.
package ioschema

import (
	"context"
	"log/slog"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/gnames/gncity/pkg/mapping"
	"github.com/gnames/gncity/pkg/schema"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// manager implements the gncity.SchemaManager interface.
type manager struct {
	operator gncity.Operator
}

// NewManager creates a new SchemaManager.
func NewManager(op gncity.Operator) gncity.SchemaManager {
	return &manager{operator: op}
}

// Create creates the city schema and fills the objectclass table. It can
// be called on a database that already has the schema.
func (m *manager) Create(ctx context.Context) error {
	db := m.operator.DB()
	if db == nil {
		return NotConnectedError()
	}

	switch m.operator.Driver() {
	case iodb.DriverPostgres:
		gormDB, err := gorm.Open(
			postgres.New(postgres.Config{Conn: db}),
			&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
		)
		if err != nil {
			return GORMConnectionError(err)
		}

		if err = schema.Migrate(gormDB); err != nil {
			return CreateSchemaError(err)
		}
	default:
		for _, q := range schema.DDL() {
			if _, err := db.ExecContext(ctx, q); err != nil {
				return CreateSchemaError(err)
			}
		}
	}

	if err := m.seedObjectClasses(ctx); err != nil {
		return err
	}

	slog.Info("City schema is ready", "driver", m.operator.Driver())
	return nil
}

func (m *manager) seedObjectClasses(ctx context.Context) error {
	db := m.operator.DB()
	q := iodb.Rebind(m.operator.Driver(), insertObjectClassSQL())

	for _, oc := range mapping.ObjectClasses() {
		_, err := db.ExecContext(ctx, q, oc.ID, oc.Name, oc.Table, oc.TopLevel)
		if err != nil {
			return SeedError(oc.Name, err)
		}
	}
	return nil
}
