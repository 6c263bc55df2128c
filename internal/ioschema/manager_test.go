package ioschema_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/internal/ioschema"
	"github.com/gnames/gncity/internal/iotesting"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLite(t *testing.T) {
	ctx := context.Background()
	op := iodb.NewSQLiteOperator(2)
	cfg := config.DatabaseConfig{
		Driver: iodb.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "city.db"),
	}
	require.NoError(t, op.Connect(ctx, &cfg))
	defer op.Close()

	mgr := ioschema.NewManager(op)
	require.NoError(t, mgr.Create(ctx))
	// second run keeps existing tables and rows
	require.NoError(t, mgr.Create(ctx))

	for _, table := range []string{
		"objectclass", "cityobject", "surface_geometry", "cityobject_reference",
	} {
		ok, err := op.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}

	var n int
	err := op.DB().QueryRowContext(ctx, "SELECT count(*) FROM objectclass").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, len(mapping.ObjectClasses()), n)
}

func TestCreateNotConnected(t *testing.T) {
	mgr := ioschema.NewManager(iodb.NewSQLiteOperator(1))
	err := mgr.Create(context.Background())
	assert.Error(t, err)
}

func TestCreatePostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	op := iodb.NewPgxOperator(4)
	cfg := iotesting.GetTestConfig()
	require.NoError(t, op.Connect(ctx, &cfg.Database))
	defer op.Close()

	mgr := ioschema.NewManager(op)
	require.NoError(t, mgr.Create(ctx))
	require.NoError(t, mgr.Create(ctx))

	ok, err := op.TableExists(ctx, "cityobject")
	require.NoError(t, err)
	assert.True(t, ok)
}
