package ioexport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gnames/gncity/internal/iodb"
	"github.com/gnames/gncity/pkg/feature"
	"github.com/gnames/gncity/pkg/tiling"
	"github.com/gnames/gncity/pkg/workerpool"
)

const centreX = "(envelope_xmin + envelope_xmax) / 2"
const centreY = "(envelope_ymin + envelope_ymax) / 2"

// splitter is the single producer of a tile. It iterates the feature
// query with a cursor and submits one SplitUnit per row.
type splitter struct {
	r *tileRun

	stop     chan struct{}
	stopOnce sync.Once

	submitted atomic.Int64
	skipped   atomic.Int64
}

func newSplitter(r *tileRun) *splitter {
	return &splitter{r: r, stop: make(chan struct{})}
}

// where returns the filter of top-level features of the tile. Without
// tiling the extent is closed on all sides. With tiling the max edges are
// excluded except on the last row or column, the same rule Tile.Contains
// applies, so Count agrees with the rows StartQuery submits.
func (s *splitter) where() (string, []any) {
	var conds []string
	var args []any
	conds = append(conds, "is_toplevel = TRUE")

	if ids := s.r.classIDs; len(ids) > 0 {
		ph := make([]string, len(ids))
		for i, id := range ids {
			args = append(args, id)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds,
			fmt.Sprintf("objectclass_id IN (%s)", strings.Join(ph, ", ")))
	}

	if s.r.spatial {
		t := s.r.tile
		args = append(args, t.Extent.MinX, t.Extent.MaxX, t.Extent.MinY, t.Extent.MaxY)
		n := len(args)
		conds = append(conds,
			"envelope_xmin IS NOT NULL",
			between(centreX, n-3, n-2, t.IsLastCol()),
			between(centreY, n-1, n, t.IsLastRow()),
		)
	}
	return strings.Join(conds, " AND "), args
}

// between is a range condition on expr with placeholders lo and hi. The
// upper bound is included only when closed is true.
func between(expr string, lo, hi int, closed bool) string {
	op := "<"
	if closed {
		op = "<="
	}
	return fmt.Sprintf("%s >= $%d AND %s %s $%d", expr, lo, expr, op, hi)
}

// Count returns the number of features of the tile. It uses the filter of
// StartQuery.
func (s *splitter) Count(ctx context.Context) (int64, error) {
	where, args := s.where()
	q := iodb.Rebind(s.r.op.Driver(),
		"SELECT count(*) FROM cityobject WHERE "+where)

	var res int64
	err := s.r.op.DB().QueryRowContext(ctx, q, args...).Scan(&res)
	if err != nil {
		return 0, CountError(s.r.tileName, err)
	}
	return res, nil
}

// StartQuery runs the query and feeds the export pool until the rows are
// exhausted, Shutdown is called or the pool stops accepting work. Only a
// failure of the query itself is returned.
func (s *splitter) StartQuery(ctx context.Context) error {
	where, args := s.where()
	q := iodb.Rebind(s.r.op.Driver(), fmt.Sprintf(`SELECT id, objectclass_id, gmlid,
    envelope_xmin, envelope_ymin, envelope_xmax, envelope_ymax
  FROM cityobject
  WHERE %s
  ORDER BY id`, where))

	rows, err := s.r.op.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return QueryError(s.r.tileName, err)
	}
	defer rows.Close()

	for rows.Next() {
		if s.stopped() {
			return nil
		}

		var u feature.SplitUnit
		var gmlID sql.NullString
		var x0, y0, x1, y1 sql.NullFloat64
		if err = rows.Scan(&u.ID, &u.ObjectClassID, &gmlID, &x0, &y0, &x1, &y1); err != nil {
			return QueryError(s.r.tileName, err)
		}
		u.GMLID = gmlID.String

		if s.r.spatial && !s.r.tile.Contains((x0.Float64+x1.Float64)/2, (y0.Float64+y1.Float64)/2) {
			continue
		}
		if s.r.exported.contains(u.ID) {
			s.skipped.Add(1)
			continue
		}

		if u.GMLID != "" {
			// targets known before they are written stay unresolved
			if _, _, err = s.r.objects.PutIfAbsent(ctx, u.GMLID, u.ID); err != nil {
				s.r.stagingFailed("object cache", err)
			}
		}

		err = s.r.exportPool.Submit(ctx, u)
		if errors.Is(err, workerpool.ErrPoolShutdown) {
			slog.Debug("Export pool stopped accepting features", "tile", s.r.tileName)
			return nil
		}
		if err != nil {
			return err
		}
		s.submitted.Add(1)
	}

	if err = rows.Err(); err != nil {
		return QueryError(s.r.tileName, err)
	}
	return nil
}

// Shutdown stops row iteration. It can be called many times.
func (s *splitter) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *splitter) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Stats returns the number of submitted and skipped units.
func (s *splitter) Stats() (submitted, skipped int64) {
	return s.submitted.Load(), s.skipped.Load()
}

// tileLabel names a tile in logs and errors.
func tileLabel(t tiling.Tile) string {
	return fmt.Sprintf("%d/%d (row %d, col %d)",
		t.Index()+1, t.Rows*t.Cols, t.Row, t.Col)
}
