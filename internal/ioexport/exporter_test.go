package ioexport_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gnames/gn"
	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/internal/ioexport"
	"github.com/gnames/gncity/internal/iotesting"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/errcode"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// memWriter keeps documents in memory. It fails the call with number
// failAt, or every call for the feature failID. onFeature runs before a
// feature is written.
type memWriter struct {
	mu        sync.Mutex
	path      string
	features  []feature.Feature
	links     []feature.Link
	calls     int
	failAt    int
	failID    string
	delay     time.Duration
	onFeature func(feature.Feature)
	closed    bool
}

func (w *memWriter) WriteFeature(f feature.Feature) error {
	if w.onFeature != nil {
		w.onFeature(f)
	}

	w.mu.Lock()
	w.calls++
	n := w.calls
	w.mu.Unlock()

	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	if n == w.failAt || f.GMLID == w.failID {
		return errBoom
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.features = append(w.features, f)
	return nil
}

func (w *memWriter) WriteLink(l feature.Link) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.links = append(w.links, l)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// memOutput collects writers of all tiles.
type memOutput struct {
	mu      sync.Mutex
	writers []*memWriter
	proto   memWriter
}

func (o *memOutput) factory(path string) (gncity.FeatureWriter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := &memWriter{
		path:   path,
		failAt:    o.proto.failAt,
		failID:    o.proto.failID,
		delay:     o.proto.delay,
		onFeature: o.proto.onFeature,
	}
	o.writers = append(o.writers, w)
	return w, nil
}

func (o *memOutput) features() []feature.Feature {
	var res []feature.Feature
	for _, w := range o.writers {
		res = append(res, w.features...)
	}
	return res
}

func (o *memOutput) links() []feature.Link {
	var res []feature.Link
	for _, w := range o.writers {
		res = append(res, w.links...)
	}
	return res
}

func setup(
	t *testing.T,
	fx iotesting.Fixture,
	opts ...config.Option,
) (*config.Config, gncity.Operator) {
	t.Helper()
	path := iotesting.NewCityDB(t, fx)
	cfg := iotesting.SQLiteConfig(t, path, opts...)

	op := iodb.NewSQLiteOperator(ioexport.ConnectionsNeeded(cfg))
	require.NoError(t, op.Connect(context.Background(), &cfg.Database))
	t.Cleanup(func() { op.Close() })
	return cfg, op
}

func singleWorker() []config.Option {
	return []config.Option{
		config.OptExportMaxThreads(1),
		config.OptExportMinThreads(1),
		config.OptExportStrategy("fixed"),
	}
}

func stagingFiles(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	entries, err := os.ReadDir(config.StagingDir(cfg.HomeDir))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var res []string
	for _, e := range entries {
		res = append(res, e.Name())
	}
	return res
}

func TestExportWithoutReferences(t *testing.T) {
	n := 10_000
	cfg, op := setup(t, iotesting.Buildings(n, 100))
	out := &memOutput{}

	exp := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory))
	res, err := exp.Export(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Degraded)

	fs := out.features()
	assert.Len(t, fs, n)
	seen := make(map[int64]int)
	for _, f := range fs {
		seen[f.ID]++
		assert.Empty(t, f.Deferred)
	}
	assert.Len(t, seen, n)
	for id, cnt := range seen {
		assert.Equal(t, 1, cnt, id)
	}

	assert.Empty(t, out.links())
	assert.Equal(t, int64(n), res.Exported)
	assert.Equal(t, int64(n), res.Counters.Objects[26])
	assert.Equal(t, int64(n), res.Counters.Geometries["polygon"])
	require.Len(t, out.writers, 1)
	assert.True(t, out.writers[0].closed)
	assert.Equal(t, cfg.Export.Output, out.writers[0].path)
	assert.Empty(t, stagingFiles(t, cfg))
}

func forwardReference() iotesting.Fixture {
	fx := iotesting.Buildings(2, 2)
	fx.References = append(fx.References, iotesting.Reference{
		ID:           1,
		CityObjectID: 1,
		Kind:         "basic",
		Attribute:    "relatedTo",
		TargetGMLID:  "BLDG_2",
	})
	return fx
}

func TestForwardReference(t *testing.T) {
	cfg, op := setup(t, forwardReference(), singleWorker()...)
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)

	// BLDG_2 was not written when BLDG_1 was materialised
	fs := out.features()
	require.Len(t, fs, 2)
	assert.Equal(t, "BLDG_1", fs[0].GMLID)
	assert.Empty(t, fs[0].Properties)

	links := out.links()
	require.Len(t, links, 1)
	assert.Equal(t, "BLDG_1", links[0].SourceGMLID)
	assert.Equal(t, "BLDG_2", links[0].TargetGMLID)
	assert.Equal(t, feature.TargetObject, links[0].TargetKind)
	assert.True(t, links[0].Resolved)
	assert.Equal(t, int64(1), res.Links)
	assert.Equal(t, int64(0), res.Unresolved)
	assert.Empty(t, stagingFiles(t, cfg))
}

func TestBackwardReferenceInline(t *testing.T) {
	fx := iotesting.Buildings(2, 2)
	fx.References = append(fx.References, iotesting.Reference{
		ID:           1,
		CityObjectID: 2,
		Kind:         "groupmember",
		Attribute:    "groupMember",
		TargetGMLID:  "BLDG_1",
		Detail:       "role:main",
	})

	tests := []struct {
		policy string
		inline bool
	}{
		{"inline", true},
		{"deferred", false},
	}

	for _, v := range tests {
		opts := append(singleWorker(), config.OptExportXlinkPolicy(v.policy))
		cfg, op := setup(t, fx, opts...)
		out := &memOutput{}

		res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
			Export(context.Background())
		require.NoError(t, err, v.policy)

		fs := out.features()
		require.Len(t, fs, 2, v.policy)
		if v.inline {
			require.Len(t, fs[1].Properties, 1)
			assert.Equal(t, "#BLDG_1", fs[1].Properties[0].Href)
			assert.Equal(t, "role:main", fs[1].Properties[0].Detail)
			assert.Empty(t, out.links())
			continue
		}
		assert.Empty(t, fs[1].Properties, v.policy)
		require.Len(t, out.links(), 1, v.policy)
		assert.True(t, out.links()[0].Resolved, v.policy)
		assert.Equal(t, int64(1), res.Links, v.policy)
	}
}

func TestDanglingReference(t *testing.T) {
	fx := iotesting.Buildings(3, 3)
	fx.References = append(fx.References, iotesting.Reference{
		ID:           1,
		CityObjectID: 2,
		Kind:         "libraryobject",
		Attribute:    "libraryObject",
		TargetGMLID:  "NOWHERE",
		TargetKind:   "object",
	})
	cfg, op := setup(t, fx)
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.Unresolved)
	assert.Equal(t, int64(0), res.Links)

	links := out.links()
	require.Len(t, links, 1)
	assert.False(t, links[0].Resolved)
	assert.Equal(t, "NOWHERE", links[0].TargetGMLID)
	assert.Empty(t, stagingFiles(t, cfg))
}

func TestStagingFailureDegrades(t *testing.T) {
	fx := iotesting.Buildings(3, 3)
	fx.References = append(fx.References, iotesting.Reference{
		ID:           1,
		CityObjectID: 1,
		Kind:         "basic",
		Attribute:    "relatedTo",
		TargetGMLID:  "NOWHERE",
		TargetKind:   "object",
	})
	opts := append(singleWorker(),
		config.OptExportCacheBackend("database"),
		config.OptExportXlinkPolicy("deferred"),
		config.OptDatabaseBatchSize(1_000),
	)
	cfg, op := setup(t, fx, opts...)

	// the reference of BLDG_1 waits in an unflushed batch, its table is
	// dropped under the exporter
	var dropErr error
	dropStaging := func(f feature.Feature) {
		if f.GMLID != "BLDG_3" {
			return
		}
		ctx := context.Background()
		q := `SELECT name FROM sqlite_master
  WHERE type = 'table' AND name LIKE 'gncity_%_basic'`
		var name string
		for range 200 {
			if dropErr = op.DB().QueryRowContext(ctx, q).Scan(&name); dropErr == nil {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		if dropErr == nil {
			_, dropErr = op.DB().ExecContext(ctx, "DROP TABLE "+name)
		}
	}
	out := &memOutput{proto: memWriter{onFeature: dropStaging}}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, dropErr)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Cause)
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.DegradedReasons)
	assert.Equal(t, int64(3), res.Exported)

	links := out.links()
	require.Len(t, links, 1)
	assert.False(t, links[0].Resolved)
	assert.Equal(t, "NOWHERE", links[0].TargetGMLID)
	assert.Equal(t, int64(1), res.Unresolved)
}

func TestSharedGeometries(t *testing.T) {
	fx := iotesting.Buildings(3, 3)
	// building 2 repeats the polygon of building 1
	fx.Geometries[1].GMLID = "POLY_1"
	// building 3 points to the polygon of building 1
	fx.Geometries = append(fx.Geometries, iotesting.Geometry{
		ID:           10,
		CityObjectID: 3,
		Kind:         "polygon",
		XlinkGMLID:   "POLY_1",
	})
	cfg, op := setup(t, fx, singleWorker()...)
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)

	fs := out.features()
	require.Len(t, fs, 3)
	require.Len(t, fs[1].Geometries, 1)
	assert.Equal(t, "#POLY_1", fs[1].Geometries[0].Href)
	assert.Empty(t, fs[1].Geometries[0].Data)

	require.Len(t, fs[2].Geometries, 2)
	assert.Equal(t, "#POLY_1", fs[2].Geometries[1].Href)

	// POLY_1 and POLY_3 are emitted once each
	assert.Equal(t, int64(2), res.Counters.Geometries["polygon"])
}

func TestGeneratedIDs(t *testing.T) {
	fx := iotesting.Buildings(1, 1)
	fx.Objects[0].GMLID = ""
	fx.Geometries[0].GMLID = ""
	cfg, op := setup(t, fx)
	out := &memOutput{}

	_, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)

	fs := out.features()
	require.Len(t, fs, 1)
	assert.Regexp(t, `^UUID_[0-9a-f-]{36}$`, fs[0].GMLID)
	assert.Regexp(t, `^UUID_[0-9a-f-]{36}$`, fs[0].Geometries[0].GMLID)
}

func TestTiledExport(t *testing.T) {
	fx := iotesting.Buildings(16, 4)
	// centre (2, 2) lies on the inner corner of all four tiles
	fx.Objects = append(fx.Objects, iotesting.Object{
		ID:       100,
		ClassID:  44,
		GMLID:    "ROAD_100",
		Envelope: []float64{1, 1, 3, 3},
		TopLevel: true,
	})
	// outside of the bounding box
	fx.Objects = append(fx.Objects, iotesting.Object{
		ID:       101,
		ClassID:  26,
		GMLID:    "BLDG_FAR",
		Envelope: []float64{10, 10, 11, 11},
		TopLevel: true,
	})
	cfg, op := setup(t, fx,
		config.OptExportBBox([]float64{0, 0, 4, 4}),
		config.OptExportTiling(2, 2),
		config.OptExportTilingSuffix("index"),
	)
	require.True(t, cfg.IsTiled())
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Tiles, 4)
	require.Len(t, out.writers, 4)

	var sum int64
	sumGeoms := make(map[string]int64)
	for i, tr := range res.Tiles {
		assert.Equal(t, i, tr.Tile.Index())
		assert.Equal(t, out.writers[i].path, tr.Path)
		assert.Contains(t, tr.Path, fmt.Sprintf("export_%d_%d.jsonl", tr.Tile.Row, tr.Tile.Col))
		sum += tr.Exported
		for k, v := range tr.Counters.Geometries {
			sumGeoms[k] += v
		}
	}
	assert.Equal(t, int64(17), sum)
	assert.Equal(t, int64(17), res.Exported)
	assert.Equal(t, int64(16), res.Counters.Objects[26])
	assert.Equal(t, int64(1), res.Counters.Objects[44])
	assert.Equal(t, sumGeoms, res.Counters.Geometries)

	seen := make(map[string]int)
	for _, f := range out.features() {
		seen[f.GMLID]++
	}
	assert.Len(t, seen, 17)
	assert.Equal(t, 1, seen["ROAD_100"])
	assert.Equal(t, 0, seen["BLDG_FAR"])
	assert.Equal(t, int64(5), res.Tiles[3].Exported)
	assert.Empty(t, stagingFiles(t, cfg))
}

func TestTiledExportFiles(t *testing.T) {
	cfg, op := setup(t, iotesting.Buildings(4, 2),
		config.OptExportBBox([]float64{0, 0, 2, 2}),
		config.OptExportTiling(1, 2),
		config.OptExportTilingSuffix("xmin_ymin"),
	)

	res, err := ioexport.New(cfg, op).Export(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Tiles, 2)

	dir := filepath.Dir(cfg.Export.Output)
	for _, name := range []string{"export_0_0.jsonl", "export_1_0.jsonl"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}
}

func TestFatalFeatureError(t *testing.T) {
	threads := 5
	cfg, op := setup(t, iotesting.Buildings(100, 10),
		config.OptExportMaxThreads(threads),
		config.OptExportMinThreads(threads),
		config.OptExportQueueSize(10),
		config.OptExportFailOnFeatureError(true),
	)
	out := &memOutput{proto: memWriter{failAt: 5, delay: 5 * time.Millisecond}}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, res.Success)
	assert.Equal(t, errBoom, res.Cause)
	assert.Contains(t, res.Message, "feature")

	require.Len(t, out.writers, 1)
	w := out.writers[0]
	assert.True(t, w.closed)

	// workers busy with the first calls finish them
	assert.GreaterOrEqual(t, len(w.features), threads-1)
	assert.Equal(t, w.calls-1, len(w.features))
	// a worker starts at most one more item while the failing call sleeps,
	// queued items never start
	assert.LessOrEqual(t, w.calls, 3*threads)

	require.Len(t, res.Tiles, 1)
	tr := res.Tiles[0]
	assert.Equal(t, int64(len(w.features)), tr.Exported)
	assert.Equal(t, int64(1), tr.Skipped)
	assert.Positive(t, tr.Discarded)
	assert.Equal(t, tr.Discarded, res.Discarded)
	assert.LessOrEqual(t, tr.Exported+tr.Skipped+tr.Discarded, int64(100))
	assert.Empty(t, stagingFiles(t, cfg))
}

func TestSkippedFeatureError(t *testing.T) {
	cfg, op := setup(t, iotesting.Buildings(20, 5))
	out := &memOutput{proto: memWriter{failID: "BLDG_7"}}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, int64(19), res.Exported)
	assert.Len(t, out.features(), 19)
}

func TestCancelledExport(t *testing.T) {
	cfg, op := setup(t, iotesting.Buildings(200, 20))
	out := &memOutput{proto: memWriter{delay: 2 * time.Millisecond}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(ctx)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.NotNil(t, res.Cause)
	assert.Empty(t, stagingFiles(t, cfg))
}

func TestSmallCaches(t *testing.T) {
	n := 200
	fx := iotesting.Buildings(n, 20)
	// every building points to the next one, the last to the first
	for i := range n {
		target := (i+1)%n + 1
		fx.References = append(fx.References, iotesting.Reference{
			ID:           int64(i + 1),
			CityObjectID: int64(i + 1),
			Kind:         "basic",
			Attribute:    "relatedTo",
			TargetGMLID:  fmt.Sprintf("BLDG_%d", target),
		})
	}
	cfg, op := setup(t, fx,
		config.OptExportObjectCache(2, 8),
		config.OptExportGeometryCache(2, 8),
		config.OptDatabaseBatchSize(7),
	)
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Degraded, res.DegradedReasons)

	var inline int
	for _, f := range out.features() {
		inline += len(f.Properties)
	}
	assert.Equal(t, n, inline+len(out.links()))
	assert.Equal(t, int64(0), res.Unresolved)
	for _, l := range out.links() {
		assert.True(t, l.Resolved, l.SourceGMLID)
	}
}

func TestExportConfigErrors(t *testing.T) {
	tests := []struct {
		msg  string
		opts []config.Option
	}{
		{"tiling without bbox", []config.Option{config.OptExportTiling(2, 2)}},
		{"unknown type", []config.Option{config.OptExportFeatureTypes([]string{"Spaceship"})}},
	}

	for _, v := range tests {
		cfg, op := setup(t, iotesting.Buildings(1, 1), v.opts...)
		res, err := ioexport.New(cfg, op).Export(context.Background())
		assert.Error(t, err, v.msg)
		assert.False(t, res.Success, v.msg)
	}
}

func TestFeatureTypes(t *testing.T) {
	fx := iotesting.Buildings(5, 5)
	fx.Objects = append(fx.Objects, iotesting.Object{
		ID: 50, ClassID: 44, GMLID: "ROAD_50", TopLevel: true,
	})
	cfg, op := setup(t, fx, config.OptExportFeatureTypes([]string{"Road"}))
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Exported)
	require.Len(t, out.features(), 1)
	assert.Equal(t, "Road", out.features()[0].Type)
}

func TestNoWorkers(t *testing.T) {
	cfg, op := setup(t, iotesting.Buildings(5, 5))
	// workers cannot get their connections
	require.NoError(t, op.Close())
	out := &memOutput{}

	res, err := ioexport.New(cfg, op, ioexport.OptWriterFactory(out.factory)).
		Export(context.Background())
	require.Error(t, err)
	assert.False(t, res.Success)

	var gnErr *gn.Error
	require.True(t, errors.As(err, &gnErr))
	assert.Equal(t, errcode.PoolNoWorkersError, gnErr.Code)
	assert.Empty(t, out.features())
	require.Len(t, out.writers, 1)
	assert.True(t, out.writers[0].closed)
	assert.Empty(t, stagingFiles(t, cfg))
}
