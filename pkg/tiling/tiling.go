// Package tiling splits a bounding box into a grid of tiles and derives
// names of per-tile output files. All functions are pure.
package tiling

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SuffixMode selects how a tile is reflected in its file name.
type SuffixMode string

const (
	SuffixIndex        SuffixMode = "index"
	SuffixXMinYMin     SuffixMode = "xmin_ymin"
	SuffixXMaxYMin     SuffixMode = "xmax_ymin"
	SuffixXMinYMax     SuffixMode = "xmin_ymax"
	SuffixXMaxYMax     SuffixMode = "xmax_ymax"
	SuffixXMinYMinXMax SuffixMode = "xmin_ymin_xmax_ymax"
)

// BBox is an axis-aligned rectangle.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBBox creates a BBox from minX, minY, maxX, maxY.
func NewBBox(coords []float64) (BBox, error) {
	if len(coords) != 4 {
		return BBox{}, fmt.Errorf("bbox needs 4 coordinates, got %d", len(coords))
	}
	res := BBox{MinX: coords[0], MinY: coords[1], MaxX: coords[2], MaxY: coords[3]}
	if res.MinX >= res.MaxX || res.MinY >= res.MaxY {
		return BBox{}, fmt.Errorf("bbox min corner must be below max corner: %v", coords)
	}
	return res, nil
}

// Tile is one cell of the grid. Tiles are values and never change after
// Grid created them.
type Tile struct {
	Row, Col int

	// Rows and Cols of the grid the tile belongs to.
	Rows, Cols int

	Extent BBox

	// Suffix is appended to the output file name.
	Suffix string
}

// Index returns the position of the tile in row-major order.
func (t Tile) Index() int {
	return t.Row*t.Cols + t.Col
}

// IsLastRow is true for tiles of the top row of the grid.
func (t Tile) IsLastRow() bool {
	return t.Row == t.Rows-1
}

// IsLastCol is true for tiles of the right column of the grid.
func (t Tile) IsLastCol() bool {
	return t.Col == t.Cols-1
}

// Contains reports whether a point belongs to the tile. Max edges are
// excluded except on the last row or column, so a point on an interior
// border belongs to exactly one tile.
func (t Tile) Contains(x, y float64) bool {
	e := t.Extent
	if x < e.MinX || y < e.MinY {
		return false
	}
	if x > e.MaxX || (x == e.MaxX && !t.IsLastCol()) {
		return false
	}
	if y > e.MaxY || (y == e.MaxY && !t.IsLastRow()) {
		return false
	}
	return true
}

// Grid splits bbox into rows by cols tiles in row-major order, starting at
// the min corner. Row grows with Y, column grows with X.
func Grid(bbox BBox, rows, cols int, mode SuffixMode) ([]Tile, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("grid needs positive rows and cols, got %dx%d", rows, cols)
	}

	w := (bbox.MaxX - bbox.MinX) / float64(cols)
	h := (bbox.MaxY - bbox.MinY) / float64(rows)
	res := make([]Tile, 0, rows*cols)
	for r := range rows {
		for c := range cols {
			ext := BBox{
				MinX: bbox.MinX + float64(c)*w,
				MinY: bbox.MinY + float64(r)*h,
				MaxX: bbox.MinX + float64(c+1)*w,
				MaxY: bbox.MinY + float64(r+1)*h,
			}
			// the grid must cover bbox exactly despite rounding
			if c == cols-1 {
				ext.MaxX = bbox.MaxX
			}
			if r == rows-1 {
				ext.MaxY = bbox.MaxY
			}
			t := Tile{Row: r, Col: c, Rows: rows, Cols: cols, Extent: ext}
			t.Suffix = Suffix(t, mode)
			res = append(res, t)
		}
	}
	return res, nil
}

// Single returns the implicit tile of a run without tiling. It has no
// suffix and no extent.
func Single() Tile {
	return Tile{Rows: 1, Cols: 1}
}

// Suffix derives the file name suffix of a tile.
func Suffix(t Tile, mode SuffixMode) string {
	e := t.Extent
	switch mode {
	case SuffixXMinYMin:
		return corner(e.MinX, e.MinY)
	case SuffixXMaxYMin:
		return corner(e.MaxX, e.MinY)
	case SuffixXMinYMax:
		return corner(e.MinX, e.MaxY)
	case SuffixXMaxYMax:
		return corner(e.MaxX, e.MaxY)
	case SuffixXMinYMinXMax:
		return corner(e.MinX, e.MinY) + corner(e.MaxX, e.MaxY)
	default:
		return fmt.Sprintf("_%d_%d", t.Row, t.Col)
	}
}

func corner(x, y float64) string {
	return "_" + coord(x) + "_" + coord(y)
}

func coord(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	s = strings.ReplaceAll(s, ".", "p")
	s = strings.ReplaceAll(s, "-", "m")
	s = strings.ReplaceAll(s, "+", "")
	return s
}

// OutputPath inserts suffix between the stem and the extension of path.
func OutputPath(path, suffix string) string {
	if suffix == "" {
		return path
	}
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	return filepath.Join(dir, stem+suffix+ext)
}
