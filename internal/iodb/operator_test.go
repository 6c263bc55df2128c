package iodb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/internal/iotesting"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PostgreSQL tests use GNCITY_DATABASE_* environment variables and the
// gncity_test database. Skip them with `go test -short`.

func TestNew(t *testing.T) {
	tests := []struct {
		driver string
		isErr  bool
	}{
		{iodb.DriverPostgres, false},
		{iodb.DriverSQLite, false},
	}

	for _, v := range tests {
		cfg := config.New()
		cfg.Update([]config.Option{config.OptDatabaseDriver(v.driver)})
		op, err := iodb.New(cfg, 4)
		assert.Equal(t, v.isErr, err != nil, v.driver)
		assert.Equal(t, v.driver, op.Driver(), v.driver)
	}

	cfg := config.New()
	cfg.Database.Driver = "oracle"
	_, err := iodb.New(cfg, 4)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = $1 AND b IN ($2, $10)"
	assert.Equal(t, q, iodb.Rebind(iodb.DriverPostgres, q))
	assert.Equal(t,
		"SELECT * FROM t WHERE a = ?1 AND b IN (?2, ?10)",
		iodb.Rebind(iodb.DriverSQLite, q),
	)
}

func TestNotConnected(t *testing.T) {
	ctx := context.Background()
	ops := []gncity.Operator{
		iodb.NewPgxOperator(0),
		iodb.NewSQLiteOperator(0),
	}
	for _, op := range ops {
		assert.Nil(t, op.DB(), op.Driver())
		_, err := op.HasTables(ctx)
		assert.Error(t, err, op.Driver())
		assert.Error(t, op.DropAllTables(ctx), op.Driver())
		assert.NoError(t, op.Close(), op.Driver())
	}
}

func TestSQLiteOperator(t *testing.T) {
	ctx := context.Background()
	op := iodb.NewSQLiteOperator(2)

	err := op.Connect(ctx, &config.DatabaseConfig{Driver: iodb.DriverSQLite})
	assert.Error(t, err, "empty path")

	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, op.Connect(ctx, &config.DatabaseConfig{Path: path}))
	defer op.Close()

	has, err := op.HasTables(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = op.DB().ExecContext(ctx, "CREATE TABLE drop_test1 (id INTEGER)")
	require.NoError(t, err)
	_, err = op.DB().ExecContext(ctx, "CREATE TABLE drop_test2 (id INTEGER)")
	require.NoError(t, err)

	exists, err := op.TableExists(ctx, "drop_test1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = op.TableExists(ctx, "nonexistent_table")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, op.DropAllTables(ctx))
	has, err = op.HasTables(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPgxOperator(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	op := iodb.NewPgxOperator(4)
	require.NoError(t, op.Connect(ctx, iotesting.GetTestDatabaseConfig()))
	defer op.Close()
	assert.NotNil(t, op.Pool())
	assert.NotNil(t, op.DB())

	_, _ = op.Pool().Exec(ctx, "DROP TABLE IF EXISTS test_table_exists CASCADE")
	exists, err := op.TableExists(ctx, "test_table_exists")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = op.Pool().Exec(ctx, "CREATE TABLE test_table_exists (id SERIAL PRIMARY KEY)")
	require.NoError(t, err)
	exists, err = op.TableExists(ctx, "test_table_exists")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, op.DropAllTables(ctx))
	has, err := op.HasTables(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPgxOperatorInvalidHost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := iotesting.GetTestDatabaseConfig()
	cfg.Host = "invalid-host-that-does-not-exist"
	op := iodb.NewPgxOperator(2)
	assert.Error(t, op.Connect(context.Background(), cfg))
}
