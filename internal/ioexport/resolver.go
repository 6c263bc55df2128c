package ioexport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/gnames/gn"
	"github.com/gnames/gncity/internal/iocache"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/workerpool"
)

// replayPage is the number of staged rows read from a cache table at once.
const replayPage = 1_000

// xlinkWorker resolves deferred references. A resolved reference becomes
// a link in the output, an unresolved one is staged in the cache table of
// its kind.
type xlinkWorker struct {
	r *tileRun
}

func (r *tileRun) newXlinkWorker(
	context.Context,
) (workerpool.Worker[feature.DeferredReference], error) {
	return &xlinkWorker{r: r}, nil
}

func (w *xlinkWorker) Close() error { return nil }

func (w *xlinkWorker) Work(ctx context.Context, ref feature.DeferredReference) error {
	r := w.r
	if r.bus.IsInterrupted() {
		return nil
	}

	ok, err := r.isResolved(ctx, ref)
	if err != nil {
		return err
	}
	if ok {
		return r.writeLink(ref, true)
	}
	return r.stage(ctx, ref)
}

// deferReference hands a reference to the xlink pool. When the pool does
// not take it anymore the reference is staged right away.
func (r *tileRun) deferReference(ctx context.Context, ref feature.DeferredReference) {
	r.stats.deferred.Add(1)
	err := r.xlinkPool.Submit(ctx, ref)
	if err == nil {
		return
	}
	if !errors.Is(err, workerpool.ErrPoolShutdown) {
		slog.Warn("Cannot submit reference", "source", ref.SourceGMLID, "error", err)
	}
	if r.bus.IsInterrupted() {
		return
	}
	if err = r.stage(ctx, ref); err != nil {
		r.stagingFailed("cache table", err)
	}
}

func (r *tileRun) isResolved(
	ctx context.Context,
	ref feature.DeferredReference,
) (bool, error) {
	ent, ok, err := r.cacheOf(ref.TargetKind).Get(ctx, ref.TargetGMLID)
	if err != nil {
		return false, err
	}
	return ok && ent.Resolved, nil
}

func (r *tileRun) stage(ctx context.Context, ref feature.DeferredReference) error {
	tbl, err := r.caches.CreateCacheTable(ctx, ref.Kind)
	if err != nil {
		return err
	}
	return tbl.Insert(ctx, ref)
}

func (r *tileRun) writeLink(ref feature.DeferredReference, resolved bool) error {
	if err := r.writer.WriteLink(feature.NewLink(ref, resolved)); err != nil {
		return err
	}
	if resolved {
		r.stats.links.Add(1)
	} else {
		r.stats.unresolved.Add(1)
	}
	return nil
}

// replay resubmits references staged so far to the xlink pool. It runs
// after the export pool drained, when every target of the tile is cached.
// Rows staged again by the pool get higher sequence numbers and are left
// for finish.
func (r *tileRun) replay(ctx context.Context) error {
	if err := r.caches.Flush(ctx); err != nil {
		return err
	}

	var n int
	for _, tbl := range r.caches.Tables() {
		toSeq, err := tbl.MaxSeq(ctx)
		if err != nil {
			return err
		}

		var after int64
		for {
			refs, err := tbl.Scan(ctx, after, toSeq, replayPage)
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				break
			}
			after = refs[len(refs)-1].Seq
			if err = tbl.DeleteUpTo(ctx, after); err != nil {
				return err
			}
			for _, ref := range refs {
				if err = r.xlinkPool.Submit(ctx, ref); err != nil {
					if errors.Is(err, workerpool.ErrPoolShutdown) {
						return nil
					}
					return err
				}
				n++
			}
		}
	}

	if n > 0 {
		slog.Info("Replayed staged references", "tile", r.tileName, "references", n)
	}
	return nil
}

// finish resolves what is still staged after the xlink pool stopped.
// References without an exported target are written as unresolved links.
// A failing cache table marks the run as degraded and is given up, only
// writer errors are returned.
func (r *tileRun) finish(ctx context.Context) error {
	for _, tbl := range r.caches.Tables() {
		if err := r.finishTable(ctx, tbl); err != nil {
			return err
		}
	}

	if n := r.stats.unresolved.Load(); n > 0 {
		slog.Warn("Dangling references", "tile", r.tileName, "references", n)
		gn.Warn("Tile %s has <em>%s</em> references to features that were not exported",
			r.tileName, humanize.Comma(n))
	}
	return nil
}

func (r *tileRun) finishTable(ctx context.Context, tbl *iocache.CacheTable) error {
	if err := tbl.ExecuteBatch(ctx); err != nil {
		r.stagingFailed("cache table "+tbl.Name(), err)
		// the batch never reached the table
		if err = r.writeStaged(ctx, tbl.Unflushed()); err != nil {
			return err
		}
	}

	toSeq, err := tbl.MaxSeq(ctx)
	if err != nil {
		r.stagingFailed("cache table "+tbl.Name(), err)
		return nil
	}

	var after int64
	for {
		refs, err := tbl.Scan(ctx, after, toSeq, replayPage)
		if err != nil {
			r.stagingFailed("cache table "+tbl.Name(), err)
			return nil
		}
		if len(refs) == 0 {
			return nil
		}
		if err = r.writeStaged(ctx, refs); err != nil {
			return err
		}
		after = refs[len(refs)-1].Seq
		// rows left behind are dropped with the table
		if err = tbl.DeleteUpTo(ctx, after); err != nil {
			r.stagingFailed("cache table "+tbl.Name(), err)
			return nil
		}
	}
}

// writeStaged writes staged references as links. A reference whose
// target cannot be looked up is written as unresolved.
func (r *tileRun) writeStaged(ctx context.Context, refs []feature.DeferredReference) error {
	var lookupErr error
	for _, ref := range refs {
		ok, err := r.isResolved(ctx, ref)
		if err != nil && lookupErr == nil {
			lookupErr = err
		}
		if err = r.writeLink(ref, ok); err != nil {
			return err
		}
	}
	if lookupErr != nil {
		r.stagingFailed("id cache", lookupErr)
	}
	return nil
}
