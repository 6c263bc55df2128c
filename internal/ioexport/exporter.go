// Package ioexport implements the concurrent export of city features. It
// splits the selected features of every tile into units, materialises them
// in a pool of export workers, resolves references between them in a
// smaller xlink pool, and stages references it cannot resolve yet in cache
// tables.
package ioexport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gnames/gn"
	"github.com/gnames/gncity/internal/iocache"
	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/internal/iowriter"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/counter"
	"github.com/gnames/gncity/pkg/events"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/gnames/gncity/pkg/mapping"
	"github.com/gnames/gncity/pkg/tiling"
	"github.com/gnames/gnfmt"
)

// WriterFactory opens the output of one tile.
type WriterFactory func(path string) (gncity.FeatureWriter, error)

// Option changes defaults of the exporter.
type Option func(*exporter)

// OptWriterFactory replaces the JSON Lines writer.
func OptWriterFactory(f WriterFactory) Option {
	return func(e *exporter) {
		e.newWriter = f
	}
}

type exporter struct {
	cfg       *config.Config
	op        gncity.Operator
	newWriter WriterFactory
}

// New creates an Exporter over a connected database operator.
func New(
	cfg *config.Config,
	op gncity.Operator,
	opts ...Option,
) gncity.Exporter {
	res := &exporter{
		cfg: cfg,
		op:  op,
		newWriter: func(path string) (gncity.FeatureWriter, error) {
			return iowriter.New(path)
		},
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// ConnectionsNeeded returns the size of the database pool an export
// needs: one connection per export worker, plus connections of the
// splitter and of cache tables.
func ConnectionsNeeded(cfg *config.Config) int {
	_, xMax := cfg.XlinkThreads()
	return cfg.Export.MaxThreads + xMax + 4
}

// exportRun keeps the state of one call to Export. Tiles are processed
// one after another, only the work inside a tile is parallel.
type exportRun struct {
	*exporter
	runID    string
	bus      *events.Bus
	counters *counter.Counters
	exported *exportedSet
	classIDs []int
	tiled    bool
}

// Export runs the pipeline over every tile of the grid.
func (e *exporter) Export(ctx context.Context) (*feature.Result, error) {
	start := time.Now()
	res := &feature.Result{}

	if e.op.DB() == nil {
		return res, iodb.NotConnectedError()
	}

	tiles, spatial, err := e.tiles()
	if err != nil {
		return res, ConfigError(err)
	}
	classIDs, err := mapping.TopLevelIDs(e.cfg.Export.FeatureTypes)
	if err != nil {
		return res, ConfigError(err)
	}

	run := &exportRun{
		exporter: e,
		runID:    iocache.NewRunID(),
		bus:      events.New(),
		counters: counter.New(),
		exported: newExportedSet(),
		classIDs: classIDs,
		tiled:    e.cfg.IsTiled(),
	}

	slog.Info("Export started",
		"run", run.runID,
		"tiles", len(tiles),
		"output", e.cfg.Export.Output,
	)

	var lastCounters counter.Delta
	for _, tile := range tiles {
		tr, err := run.exportTile(ctx, tile, spatial)
		res.Tiles = append(res.Tiles, tr)
		res.Exported += tr.Exported
		res.Skipped += tr.Skipped
		res.Links += tr.Links
		res.Unresolved += tr.Unresolved
		res.Discarded += tr.Discarded
		lastCounters = tr.Counters
		if err != nil {
			break
		}
	}

	// run-wide counters are only kept while tiling
	if run.tiled {
		res.Counters = run.counters.Snapshot()
	} else {
		res.Counters = lastCounters
	}
	res.Degraded = run.bus.Degraded()
	res.DegradedReasons = run.bus.Reasons()
	res.Duration = time.Since(start)

	if run.bus.IsInterrupted() {
		res.Cause = run.bus.Cause()
		res.Message = run.bus.Message()
		slog.Error("Export failed",
			"run", run.runID,
			"in_flight", res.Message,
			"error", res.Cause,
		)
		return res, res.Cause
	}

	res.Success = true
	run.summary(res)
	return res, nil
}

// tiles returns the grid of the run. Without a bounding box the run has
// one implicit tile without spatial filter.
func (e *exporter) tiles() ([]tiling.Tile, bool, error) {
	ex := e.cfg.Export
	if len(ex.BBox) == 0 {
		if ex.Tiling.Rows*ex.Tiling.Cols > 1 {
			return nil, false, fmt.Errorf("tiling needs a bounding box")
		}
		return []tiling.Tile{tiling.Single()}, false, nil
	}

	bbox, err := tiling.NewBBox(ex.BBox)
	if err != nil {
		return nil, false, err
	}
	rows, cols := 1, 1
	if e.cfg.IsTiled() {
		rows, cols = ex.Tiling.Rows, ex.Tiling.Cols
	}
	res, err := tiling.Grid(bbox, rows, cols, tiling.SuffixMode(ex.Tiling.Suffix))
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// exportTile drives one tile through its states. Teardown happens on every
// path, a failed tile returns the original cause of the fatal event.
func (run *exportRun) exportTile(
	ctx context.Context,
	tile tiling.Tile,
	spatial bool,
) (feature.TileResult, error) {
	start := time.Now()
	path := run.cfg.Export.Output
	if run.tiled {
		path = tiling.OutputPath(path, tile.Suffix)
	}

	r := &tileRun{
		cfg:      run.cfg,
		op:       run.op,
		bus:      run.bus,
		exported: run.exported,
		tile:     tile,
		tileName: tileLabel(tile),
		spatial:  spatial,
		classIDs: run.classIDs,
		policy:   feature.NewRefPolicy(run.cfg.Export.XlinkPolicy),
	}

	r.setState(statePreparing)
	run.bus.StartTile()
	if err := r.prepare(ctx, run.runID, path, run.newWriter); err != nil {
		run.bus.Interrupt(err, "preparing tile "+r.tileName)
	} else {
		r.setState(stateRunning)
		r.execute(ctx)
	}

	if !run.bus.IsInterrupted() {
		r.setState(stateDraining)
		if err := r.finish(ctx); err != nil {
			run.bus.Interrupt(err, "resolving staged references of tile "+r.tileName)
		}
	}

	if run.bus.IsInterrupted() {
		r.setState(stateInterrupted)
	}
	if err := r.teardown(ctx); err != nil && !run.bus.IsInterrupted() {
		run.bus.Interrupt(err, "closing output of tile "+r.tileName)
	}

	res := r.result(path, start)
	if run.bus.IsInterrupted() {
		return res, run.bus.Cause()
	}

	if run.tiled {
		run.counters.Merge(run.bus.TileCounters())
	}
	run.tileSummary(res)
	return res, nil
}

func (run *exportRun) tileSummary(tr feature.TileResult) {
	slog.Info("Tile exported",
		"tile", tileLabel(tr.Tile),
		"path", tr.Path,
		"features", tr.Exported,
		"skipped", tr.Skipped,
		"links", tr.Links,
		"unresolved", tr.Unresolved,
		"duration", gnfmt.TimeString(tr.Duration.Seconds()),
	)
	if !run.tiled {
		return
	}
	gn.Info("Tile %s: <em>%s</em> features in %s",
		tileLabel(tr.Tile),
		humanize.Comma(tr.Exported),
		gnfmt.TimeString(tr.Duration.Seconds()),
	)
}

func (run *exportRun) summary(res *feature.Result) {
	lines := res.Counters.Summary(mapping.NameOf)
	slog.Info("Export complete",
		"run", run.runID,
		"features", res.Exported,
		"distinct_ids", run.exported.len(),
		"links", res.Links,
		"unresolved", res.Unresolved,
		"degraded", res.Degraded,
		"duration", gnfmt.TimeString(res.Duration.Seconds()),
	)

	msg := fmt.Sprintf(`Export complete
Features: <em>%s</em>, links: %s, dangling: %s, skipped: %s
Elapsed time: <em>%s</em>`,
		humanize.Comma(res.Exported),
		humanize.Comma(res.Links),
		humanize.Comma(res.Unresolved),
		humanize.Comma(res.Skipped),
		gnfmt.TimeString(res.Duration.Seconds()),
	)
	if len(lines) > 0 {
		msg += "\n" + strings.Join(lines, "\n")
	}
	gn.Info(msg)

	if res.Degraded {
		gn.Warn("Export finished with staging problems, see the log for details")
	}
}
