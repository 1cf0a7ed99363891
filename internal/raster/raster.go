// Package raster provides the in-memory float grid the risk surface is
// accumulated on, plus equal-interval classification of the final values.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Extent is a planar bounding box.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// Expand grows the extent by d in every direction, so the decay surface is
// not truncated at the outermost incidents.
func (e Extent) Expand(d float64) Extent {
	return Extent{
		MinX: e.MinX - d,
		MinY: e.MinY - d,
		MaxX: e.MaxX + d,
		MaxY: e.MaxY + d,
	}
}

// Width returns the horizontal span of the extent.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the vertical span of the extent.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Grid is a row-major raster of float cells over an extent. Cells carry a
// validity flag; invalid cells are "no data", not zero, so negative-decay
// artifacts never register in the classified output.
type Grid struct {
	Extent   Extent
	CellSize float64
	Cols     int
	Rows     int

	vals  []float64
	valid []bool
}

// NewGrid allocates an all-invalid grid covering the extent at the given
// cell size.
func NewGrid(extent Extent, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		return nil, eris.Errorf("raster: invalid cell size %v", cellSize)
	}
	if extent.Width() < 0 || extent.Height() < 0 {
		return nil, eris.Errorf("raster: inverted extent %+v", extent)
	}

	cols := int(math.Ceil(extent.Width() / cellSize))
	rows := int(math.Ceil(extent.Height() / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &Grid{
		Extent:   extent,
		CellSize: cellSize,
		Cols:     cols,
		Rows:     rows,
		vals:     make([]float64, cols*rows),
		valid:    make([]bool, cols*rows),
	}, nil
}

// NewGridLike allocates an all-invalid grid with the same geometry as g.
func NewGridLike(g *Grid) *Grid {
	return &Grid{
		Extent:   g.Extent,
		CellSize: g.CellSize,
		Cols:     g.Cols,
		Rows:     g.Rows,
		vals:     make([]float64, g.Cols*g.Rows),
		valid:    make([]bool, g.Cols*g.Rows),
	}
}

// SameShape reports whether two grids share geometry and can be merged
// cell-wise.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Cols == o.Cols && g.Rows == o.Rows &&
		g.CellSize == o.CellSize && g.Extent == o.Extent
}

// CellCenter returns the planar coordinates at the center of a cell.
func (g *Grid) CellCenter(col, row int) (x, y float64) {
	x = g.Extent.MinX + (float64(col)+0.5)*g.CellSize
	y = g.Extent.MinY + (float64(row)+0.5)*g.CellSize
	return x, y
}

// Value returns a cell's value and validity.
func (g *Grid) Value(col, row int) (float64, bool) {
	i := row*g.Cols + col
	return g.vals[i], g.valid[i]
}

// Set writes a cell value and marks it valid.
func (g *Grid) Set(col, row int, v float64) {
	i := row*g.Cols + col
	g.vals[i] = v
	g.valid[i] = true
}

// Invalidate marks a cell as no-data.
func (g *Grid) Invalidate(col, row int) {
	i := row*g.Cols + col
	g.vals[i] = 0
	g.valid[i] = false
}

// DropNonPositive invalidates every cell with value <= 0. Cells whose
// aggregated decay came out non-positive are "no risk", not zero risk.
func (g *Grid) DropNonPositive() {
	for i := range g.vals {
		if g.valid[i] && g.vals[i] <= 0 {
			g.vals[i] = 0
			g.valid[i] = false
		}
	}
}

// Range returns the min and max over valid cells. ok is false when the grid
// has no valid cells.
func (g *Grid) Range() (min, max float64, ok bool) {
	for i, v := range g.vals {
		if !g.valid[i] {
			continue
		}
		if !ok {
			min, max, ok = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}
