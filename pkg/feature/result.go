package feature

import (
	"time"

	"github.com/gnames/gncity/pkg/counter"
	"github.com/gnames/gncity/pkg/tiling"
)

// TileResult summarises the export of one tile.
type TileResult struct {
	Tile     tiling.Tile
	Path     string
	Counters counter.Delta

	Exported   int64
	Skipped    int64
	Links      int64
	Unresolved int64

	// Discarded counts units that were queued but never started because
	// of a fatal event.
	Discarded int64
	Duration  time.Duration
}

// Result is the outcome of an export run.
type Result struct {
	Success bool

	// Cause is the original error of the first fatal event.
	Cause error

	// Message describes what was in flight when the run failed.
	Message string

	// Degraded is true when staging or cleanup failed without breaking
	// the output.
	Degraded        bool
	DegradedReasons []string

	// Counters are run-wide. With tiling they are the sum of the tile
	// counters.
	Counters counter.Delta

	Exported   int64
	Skipped    int64
	Links      int64
	Unresolved int64
	Discarded  int64

	Tiles    []TileResult
	Duration time.Duration
}
