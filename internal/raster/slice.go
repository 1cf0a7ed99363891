package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Classified is an equal-interval classification of a grid's valid cells.
// Classes are 1-based; class n covers the top of the observed value range.
type Classified struct {
	Grid       *Grid
	ClassCount int

	min, max float64
	classes  []int // 0 = no data
}

// EqualIntervalSlice buckets the grid's valid values into classCount
// classes of equal value width over the observed range. Boundaries are
// value based, not count based. A zero-width range puts every valid cell in
// the top class.
func EqualIntervalSlice(g *Grid, classCount int) (*Classified, error) {
	if classCount < 1 {
		return nil, eris.Errorf("raster: invalid class count %d", classCount)
	}

	min, max, ok := g.Range()
	if !ok {
		return nil, eris.New("raster: no valid cells to classify")
	}

	c := &Classified{
		Grid:       g,
		ClassCount: classCount,
		min:        min,
		max:        max,
		classes:    make([]int, g.Cols*g.Rows),
	}

	width := (max - min) / float64(classCount)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v, valid := g.Value(col, row)
			if !valid {
				continue
			}
			cls := classCount
			if width > 0 {
				cls = int(math.Floor((v-min)/width)) + 1
				if cls > classCount {
					cls = classCount
				}
			}
			c.classes[row*g.Cols+col] = cls
		}
	}
	return c, nil
}

// Class returns the 1-based class of a cell, or 0 for no-data cells.
func (c *Classified) Class(col, row int) int {
	return c.classes[row*c.Grid.Cols+col]
}

// ClassRange returns the value bounds of a 1-based class.
func (c *Classified) ClassRange(class int) (lo, hi float64) {
	width := (c.max - c.min) / float64(c.ClassCount)
	lo = c.min + float64(class-1)*width
	hi = c.min + float64(class)*width
	if class == c.ClassCount {
		hi = c.max
	}
	return lo, hi
}
