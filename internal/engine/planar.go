package engine

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/raster"
)

// Planar is an in-memory SpatialEngine over incident point sets. The
// distance metric is pluggable so geodesic incident layers (lng/lat) reuse
// the same grid and search logic.
type Planar struct {
	metric Metric
}

// NewPlanar creates a Planar engine. A nil metric defaults to Euclidean.
func NewPlanar(metric Metric) *Planar {
	if metric == nil {
		metric = Euclidean
	}
	return &Planar{metric: metric}
}

// DistanceField fills a grid shaped like `like` with the distance from
// each cell center to the incident.
func (p *Planar) DistanceField(inc model.Incident, like *raster.Grid) (*raster.Grid, error) {
	if like == nil {
		return nil, eris.New("engine: distance field requires a template grid")
	}
	out := raster.NewGridLike(like)
	for row := 0; row < out.Rows; row++ {
		for col := 0; col < out.Cols; col++ {
			x, y := out.CellCenter(col, row)
			out.Set(col, row, p.metric(inc.X, inc.Y, x, y))
		}
	}
	return out, nil
}

// Nearest scans the pool for the closest incident within maxRadius.
// Equidistant features resolve to the lowest ID, independent of pool order.
// A candidate never matches itself.
func (p *Planar) Nearest(candidate model.Incident, pool []model.Incident, maxRadius float64) (Near, bool, error) {
	if maxRadius < 0 {
		return Near{}, false, eris.Errorf("engine: negative search radius %v", maxRadius)
	}

	var best Near
	found := false
	for _, inc := range pool {
		if inc.ID == candidate.ID {
			continue
		}
		d := p.metric(candidate.X, candidate.Y, inc.X, inc.Y)
		if d > maxRadius {
			continue
		}
		if !found || d < best.Distance || (d == best.Distance && inc.ID < best.ID) {
			best = Near{ID: inc.ID, Distance: d}
			found = true
		}
	}
	return best, found, nil
}

// ZonePolygons converts each class of a sliced raster into a rectilinear
// multipolygon by merging cell runs into maximal rectangles.
func (p *Planar) ZonePolygons(c *raster.Classified) (map[int]*geom.MultiPolygon, error) {
	if c == nil {
		return nil, eris.New("engine: nil classified raster")
	}

	rects := make(map[int][]cellRect)
	for row := 0; row < c.Grid.Rows; row++ {
		col := 0
		for col < c.Grid.Cols {
			cls := c.Class(col, row)
			if cls == 0 {
				col++
				continue
			}
			start := col
			for col < c.Grid.Cols && c.Class(col, row) == cls {
				col++
			}
			rects[cls] = append(rects[cls], cellRect{row: row, c0: start, c1: col})
		}
	}

	out := make(map[int]*geom.MultiPolygon, len(rects))
	for cls, runs := range rects {
		merged := mergeRuns(runs)
		mp := geom.NewMultiPolygon(geom.XY)
		for _, r := range merged {
			x0 := c.Grid.Extent.MinX + float64(r.c0)*c.Grid.CellSize
			x1 := c.Grid.Extent.MinX + float64(r.c1)*c.Grid.CellSize
			y0 := c.Grid.Extent.MinY + float64(r.row)*c.Grid.CellSize
			y1 := c.Grid.Extent.MinY + float64(r.row+r.height)*c.Grid.CellSize
			poly := geom.NewPolygonFlat(geom.XY, []float64{
				x0, y0,
				x1, y0,
				x1, y1,
				x0, y1,
				x0, y0,
			}, []int{10})
			if err := mp.Push(poly); err != nil {
				return nil, eris.Wrapf(err, "engine: build zone polygon for class %d", cls)
			}
		}
		out[cls] = mp
	}
	return out, nil
}

// cellRect is a horizontal run of cells, extended vertically during merge.
type cellRect struct {
	row    int
	c0, c1 int // [c0, c1)
	height int
}

// mergeRuns stacks vertically adjacent runs with identical column spans
// into taller rectangles. Runs must be produced row-ascending.
func mergeRuns(runs []cellRect) []cellRect {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].c0 != runs[j].c0 {
			return runs[i].c0 < runs[j].c0
		}
		return runs[i].row < runs[j].row
	})

	var merged []cellRect
	for _, r := range runs {
		r.height = 1
		extended := false
		for i := range merged {
			m := &merged[i]
			if m.c0 == r.c0 && m.c1 == r.c1 && m.row+m.height == r.row {
				m.height++
				extended = true
				break
			}
		}
		if !extended {
			merged = append(merged, r)
		}
	}
	return merged
}
