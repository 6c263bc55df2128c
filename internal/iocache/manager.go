// Package iocache implements cache tables: staging relations that keep
// deferred references and overflow of id caches out of memory during an
// export. A Manager owns every table it creates and drops all of them at
// teardown.
package iocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/google/uuid"
)

// Cache backends.
const (
	BackendDatabase = "database"
	BackendSQLite   = "sqlite"
)

// NewRunID returns a short random id that makes names of cache tables
// unique for an export run.
func NewRunID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:12]
}

// Manager creates cache tables lazily, one per kind, and drops them
// together.
type Manager struct {
	prefix    string
	batchSize int
	be        backend

	mu       sync.Mutex
	tables   map[feature.RefKind]*CacheTable
	idTables map[string]*idTable
	created  []string
	dropped  bool
}

// NewManager creates a manager for one tile of a run. Table names start
// with "gncity_<runID>_t<tile>_".
func NewManager(
	ctx context.Context,
	cfg *config.Config,
	op gncity.Operator,
	runID string,
	tile int,
) (*Manager, error) {
	prefix := fmt.Sprintf("gncity_%s_t%d", runID, tile)

	be, err := newBackend(cfg, op, prefix)
	if err != nil {
		return nil, CreateError(prefix, err)
	}

	res := &Manager{
		prefix:    prefix,
		batchSize: max(cfg.Database.BatchSize, 1),
		be:        be,
		tables:    make(map[feature.RefKind]*CacheTable),
		idTables:  make(map[string]*idTable),
	}
	return res, nil
}

func newBackend(
	cfg *config.Config,
	op gncity.Operator,
	prefix string,
) (backend, error) {
	if cfg.Export.CacheBackend == BackendDatabase {
		if op.DB() == nil {
			return nil, errors.New("database is not connected")
		}
		if op.Driver() == iodb.DriverPostgres {
			pp, ok := op.(poolProvider)
			if !ok || pp.Pool() == nil {
				return nil, errors.New("operator has no pgx pool")
			}
			return &pgBackend{db: op.DB(), pool: pp.Pool()}, nil
		}
		return &sqlBackend{db: op.DB()}, nil
	}

	dir := config.StagingDir(cfg.HomeDir)
	if cfg.HomeDir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return openSQLiteBackend(filepath.Join(dir, prefix+".db"))
}

// Prefix returns the common prefix of table names.
func (m *Manager) Prefix() string {
	return m.prefix
}

// CreateCacheTable returns the table for a kind of deferred reference,
// creating it on the first call.
func (m *Manager) CreateCacheTable(
	ctx context.Context,
	kind feature.RefKind,
) (*CacheTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tables[kind]; ok {
		return t, nil
	}
	if m.dropped {
		return nil, CreateError(string(kind), errors.New("manager is closed"))
	}

	name := m.prefix + "_" + string(kind)
	q := fmt.Sprintf(`%s %s (
    %s,
    source_id BIGINT NOT NULL,
    source_gmlid TEXT,
    source_kind TEXT,
    attribute TEXT,
    target_gmlid TEXT NOT NULL,
    target_kind TEXT,
    detail TEXT
)`, m.be.createTable(), name, m.be.serial())
	if err := m.be.exec(ctx, q); err != nil {
		return nil, CreateError(name, err)
	}

	t := &CacheTable{
		name:      name,
		kind:      kind,
		batchSize: m.batchSize,
		be:        m.be,
	}
	m.tables[kind] = t
	m.created = append(m.created, name)
	slog.Debug("Cache table created", "table", name)
	return t, nil
}

// Tables returns the reference tables created so far.
func (m *Manager) Tables() []*CacheTable {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]*CacheTable, 0, len(m.tables))
	for _, k := range feature.RefKinds {
		if t, ok := m.tables[k]; ok {
			res = append(res, t)
		}
	}
	return res
}

// Flush force-flushes every reference table.
func (m *Manager) Flush(ctx context.Context) error {
	var errs []error
	for _, t := range m.Tables() {
		errs = append(errs, t.ExecuteBatch(ctx))
	}
	return errors.Join(errs...)
}

// idTable returns a table of id cache overflow, creating it on the first
// call.
func (m *Manager) idTable(ctx context.Context, name string) (*idTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.idTables[name]; ok {
		return t, nil
	}
	if m.dropped {
		return nil, CreateError(name, errors.New("manager is closed"))
	}

	table := m.prefix + "_" + name
	q := fmt.Sprintf(`%s %s (
    gmlid TEXT PRIMARY KEY,
    internal_id BIGINT NOT NULL,
    resolved BOOLEAN NOT NULL
)`, m.be.createTable(), table)
	if err := m.be.exec(ctx, q); err != nil {
		return nil, CreateError(table, err)
	}

	t := &idTable{name: table, be: m.be}
	m.idTables[name] = t
	m.created = append(m.created, table)
	return t, nil
}

// DropAll removes every table created by the manager and releases the
// staging storage. It runs once, later calls do nothing. Failures are
// logged and returned together.
func (m *Manager) DropAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dropped {
		return nil
	}
	m.dropped = true

	var errs []error
	for _, name := range m.created {
		q := "DROP TABLE IF EXISTS " + name
		if err := m.be.exec(ctx, q); err != nil {
			slog.Warn("Cannot drop cache table", "table", name, "error", err)
			errs = append(errs, DropError(name, err))
		}
	}
	if err := m.be.close(); err != nil {
		slog.Warn("Cannot close staging storage", "prefix", m.prefix, "error", err)
		errs = append(errs, DropError(m.prefix, err))
	}

	slog.Debug("Cache tables dropped", "prefix", m.prefix, "tables", len(m.created))
	return errors.Join(errs...)
}
