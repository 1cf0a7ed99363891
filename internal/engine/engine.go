// Package engine supplies the spatial primitives the surface builder and
// classifier depend on: per-incident distance fields, bounded
// nearest-neighbor search, and zone polygon extraction from a classified
// raster.
package engine

import (
	"github.com/twpayne/go-geom"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/raster"
)

// Near identifies the nearest feature found within a search radius.
type Near struct {
	ID       int64
	Distance float64
}

// SpatialEngine is the GIS capability consumed by the analysis components.
type SpatialEngine interface {
	// DistanceField computes the distance from every cell center of a grid
	// shaped like `like` to the incident point.
	DistanceField(inc model.Incident, like *raster.Grid) (*raster.Grid, error)

	// Nearest finds the closest incident in pool to the candidate, within
	// maxRadius. Equidistant candidates resolve to the lowest ID. ok is
	// false when nothing lies within the radius.
	Nearest(candidate model.Incident, pool []model.Incident, maxRadius float64) (near Near, ok bool, err error)

	// ZonePolygons extracts one multipolygon per class from a classified
	// raster, keyed by 1-based class.
	ZonePolygons(c *raster.Classified) (map[int]*geom.MultiPolygon, error)
}
