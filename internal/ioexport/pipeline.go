package ioexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/gnames/gn"
	"github.com/gnames/gncity/internal/iocache"
	"github.com/gnames/gncity/pkg/config"
	"github.com/gnames/gncity/pkg/errcode"
	"github.com/gnames/gncity/pkg/events"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/gncity"
	"github.com/gnames/gncity/pkg/idcache"
	"github.com/gnames/gncity/pkg/tiling"
	"github.com/gnames/gncity/pkg/workerpool"
	"golang.org/x/sync/errgroup"
)

type tileState string

const (
	statePreparing   tileState = "preparing"
	stateRunning     tileState = "running"
	stateDraining    tileState = "draining"
	stateTornDown    tileState = "torn-down"
	stateInterrupted tileState = "interrupted"
)

type tileStats struct {
	exported   atomic.Int64
	failed     atomic.Int64
	abandoned  atomic.Int64
	deferred   atomic.Int64
	links      atomic.Int64
	unresolved atomic.Int64
}

// tileRun is one execution of the pipeline over one tile. It owns the
// cache tables, id caches, pools and the writer of the tile.
type tileRun struct {
	cfg      *config.Config
	op       gncity.Operator
	bus      *events.Bus
	exported *exportedSet

	tile     tiling.Tile
	tileName string
	spatial  bool
	classIDs []int
	policy   feature.RefPolicy
	state    tileState

	writer     gncity.FeatureWriter
	caches     *iocache.Manager
	objects    *idcache.Cache
	geometries *idcache.Cache
	exportPool *workerpool.Pool[feature.SplitUnit]
	xlinkPool  *workerpool.Pool[feature.DeferredReference]
	bar        *pb.ProgressBar

	stats tileStats
}

func (r *tileRun) setState(s tileState) {
	r.state = s
	slog.Info("Tile state changed",
		"tile", r.tileName,
		"row", r.tile.Row,
		"col", r.tile.Col,
		"state", string(s),
	)
}

func (r *tileRun) cacheOf(k feature.TargetKind) *idcache.Cache {
	if k == feature.TargetGeometry {
		return r.geometries
	}
	return r.objects
}

// stagingFailed records a failure of cache tables or id caches. It does
// not stop the run but marks it as degraded.
func (r *tileRun) stagingFailed(what string, err error) {
	slog.Warn("Staging failed", "tile", r.tileName, "what", what, "error", err)
	r.bus.Degrade(fmt.Sprintf("tile %s, %s: %v", r.tileName, what, err))
}

// prepare creates cache tables, id caches, the writer and both pools.
// Workers of both pools are started before the first feature is queried.
func (r *tileRun) prepare(
	ctx context.Context,
	runID string,
	path string,
	newWriter WriterFactory,
) error {
	var err error
	r.caches, err = iocache.NewManager(ctx, r.cfg, r.op, runID, r.tile.Index())
	if err != nil {
		return err
	}

	ex := r.cfg.Export
	r.objects, err = idcache.New(idcache.Config{
		Name:       "object",
		Partitions: ex.ObjectCache.Partitions,
		PageSize:   ex.ObjectCache.PageSize,
	}, r.caches.NewSpill("object"))
	if err != nil {
		return ConfigError(err)
	}
	r.geometries, err = idcache.New(idcache.Config{
		Name:       "geometry",
		Partitions: ex.GeometryCache.Partitions,
		PageSize:   ex.GeometryCache.PageSize,
	}, r.caches.NewSpill("geometry"))
	if err != nil {
		return ConfigError(err)
	}

	if r.writer, err = newWriter(path); err != nil {
		return err
	}

	strategy := workerpool.NewStrategy(ex.Strategy)
	xMin, xMax := r.cfg.XlinkThreads()
	r.xlinkPool = workerpool.New(workerpool.Config{
		Name:          "xlink",
		MinThreads:    xMin,
		MaxThreads:    xMax,
		QueueCapacity: ex.QueueSize,
		Strategy:      strategy,
	}, r.newXlinkWorker, r.onXlinkError)
	r.exportPool = workerpool.New(workerpool.Config{
		Name:          "export",
		MinThreads:    ex.MinThreads,
		MaxThreads:    ex.MaxThreads,
		QueueCapacity: ex.QueueSize,
		Strategy:      strategy,
	}, r.newExportWorker, r.onExportError)

	if err = r.xlinkPool.Prestart(); err != nil {
		return NoWorkersError(r.xlinkPool.Name(), err)
	}
	if err = r.exportPool.Prestart(); err != nil {
		r.xlinkPool.ShutdownNow()
		return NoWorkersError(r.exportPool.Name(), err)
	}
	return nil
}

// execute runs the splitter and waits for both pools. A fatal event stops
// the splitter and drains both queues, items in flight run to completion.
func (r *tileRun) execute(ctx context.Context) int64 {
	s := newSplitter(r)
	if r.cfg.Export.CountFeatures {
		total, err := s.Count(ctx)
		if err != nil {
			slog.Warn("Cannot count features", "tile", r.tileName, "error", err)
		} else {
			r.bar = newProgressBar(total, fmt.Sprintf("Tile %s: ", r.tileName))
		}
	}

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-r.bus.Interrupted():
		case <-gctx.Done():
			r.bus.Interrupt(context.Cause(gctx), "export cancelled at tile "+r.tileName)
		}
		s.Shutdown()
		features := r.exportPool.DrainWorkQueue()
		refs := r.xlinkPool.DrainWorkQueue()
		slog.Warn("Queued work discarded",
			"tile", r.tileName,
			"features", features,
			"references", refs,
		)
		return nil
	})

	g.Go(func() error {
		defer close(done)
		qErr := s.StartQuery(gctx)
		if qErr != nil {
			r.bus.Interrupt(qErr, "feature query of tile "+r.tileName)
		}
		// features without a worker were reported to onExportError
		_ = r.exportPool.ShutdownAndWait()

		// every target of the tile is cached now
		if !r.bus.IsInterrupted() {
			if err := r.replay(ctx); err != nil {
				r.stagingFailed("replay of staged references", err)
			}
		}
		_ = r.xlinkPool.ShutdownAndWait()
		return qErr
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Feature query failed", "tile", r.tileName, "error", err)
	}
	if r.bar != nil {
		r.bar.Finish()
	}

	submitted, skipped := s.Stats()
	slog.Debug("Splitter finished",
		"tile", r.tileName,
		"submitted", submitted,
		"skipped", skipped,
	)
	return submitted
}

// teardown releases everything the tile owns. It runs on every path.
func (r *tileRun) teardown(ctx context.Context) error {
	if r.exportPool != nil {
		_ = r.exportPool.ShutdownAndWait()
	}
	if r.xlinkPool != nil {
		_ = r.xlinkPool.ShutdownAndWait()
	}

	var err error
	if r.writer != nil {
		err = r.writer.Close()
	}

	if r.caches != nil {
		if dropErr := r.caches.DropAll(context.WithoutCancel(ctx)); dropErr != nil {
			r.bus.Degrade(fmt.Sprintf("tile %s, drop cache tables: %v", r.tileName, dropErr))
		}
	}

	r.setState(stateTornDown)
	return err
}

func (r *tileRun) onExportError(u feature.SplitUnit, err error) {
	r.stats.failed.Add(1)
	if r.cfg.Export.FailOnFeatureError {
		msg := fmt.Sprintf("feature %d (%s) of tile %s", u.ID, u.GMLID, r.tileName)
		if r.bus.Interrupt(err, msg) {
			slog.Error("Feature export failed, stopping", "id", u.ID, "error", err)
		}
		return
	}
	slog.Warn("Feature skipped",
		"tile", r.tileName,
		"error", FeatureError(u.GMLID, u.ID, err),
	)
}

func (r *tileRun) onXlinkError(ref feature.DeferredReference, err error) {
	var gnErr *gn.Error
	if errors.As(err, &gnErr) && gnErr.Code == errcode.ExportWriteError {
		if r.cfg.Export.FailOnFeatureError {
			msg := fmt.Sprintf("link %s -> %s of tile %s",
				ref.SourceGMLID, ref.TargetGMLID, r.tileName)
			r.bus.Interrupt(err, msg)
			return
		}
		slog.Warn("Link skipped", "source", ref.SourceGMLID, "error", err)
		return
	}
	r.stagingFailed("reference "+ref.SourceGMLID+" -> "+ref.TargetGMLID, err)
}

func (r *tileRun) result(path string, start time.Time) feature.TileResult {
	discarded := r.stats.abandoned.Load()
	if r.exportPool != nil {
		discarded += r.exportPool.Stats().Discarded
	}
	return feature.TileResult{
		Tile:       r.tile,
		Path:       path,
		Counters:   r.bus.TileCounters().Snapshot(),
		Exported:   r.stats.exported.Load(),
		Skipped:    r.stats.failed.Load(),
		Links:      r.stats.links.Load(),
		Unresolved: r.stats.unresolved.Load(),
		Discarded:  discarded,
		Duration:   time.Since(start),
	}
}
