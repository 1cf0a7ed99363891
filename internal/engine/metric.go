package engine

import (
	"math"

	"github.com/golang/geo/s2"
)

// earthRadiusMeters is the mean Earth radius used for geodesic distances.
const earthRadiusMeters = 6371008.8

// Metric computes the distance between two points. Coordinates are (x, y)
// in the incident layer's system: planar units for Euclidean, lng/lat
// degrees for geodesic.
type Metric func(x1, y1, x2, y2 float64) float64

// Euclidean is the planar straight-line distance.
func Euclidean(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// Geodesic is the great-circle distance in meters, treating x as longitude
// and y as latitude in degrees.
func Geodesic(x1, y1, x2, y2 float64) float64 {
	p1 := s2.LatLngFromDegrees(y1, x1)
	p2 := s2.LatLngFromDegrees(y2, x2)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

// MetricByName resolves a configured metric name; unknown names fall back
// to planar.
func MetricByName(name string) Metric {
	if name == "geodesic" {
		return Geodesic
	}
	return Euclidean
}
