package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/raster"
)

func day(d int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestEuclidean(t *testing.T) {
	assert.InDelta(t, 5.0, Euclidean(0, 0, 3, 4), 1e-9)
	assert.InDelta(t, 0.0, Euclidean(2, 2, 2, 2), 1e-9)
}

func TestGeodesic(t *testing.T) {
	// One degree of latitude is roughly 111.2 km.
	d := Geodesic(0, 0, 0, 1)
	assert.InDelta(t, 111195, d, 200)
	assert.InDelta(t, 0.0, Geodesic(-97.75, 30.33, -97.75, 30.33), 1e-6)
}

func TestMetricByName(t *testing.T) {
	assert.InDelta(t, 5.0, MetricByName("planar")(0, 0, 3, 4), 1e-9)
	assert.Greater(t, MetricByName("geodesic")(0, 0, 1, 0), 100000.0)
}

func TestDistanceField(t *testing.T) {
	g, err := raster.NewGrid(raster.Extent{MaxX: 10, MaxY: 10}, 1)
	require.NoError(t, err)

	eng := NewPlanar(nil)
	inc := model.Incident{ID: 1, X: 0.5, Y: 0.5, OccurredAt: day(0)}

	df, err := eng.DistanceField(inc, g)
	require.NoError(t, err)
	require.True(t, g.SameShape(df))

	// Cell (0,0) center is the incident itself.
	v, ok := df.Value(0, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.0, v, 1e-9)

	// Cell (3,4) center is (3.5, 4.5): a 3-4-5 triangle from the incident.
	v, ok = df.Value(3, 4)
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)
}

func TestNearest(t *testing.T) {
	eng := NewPlanar(nil)
	cand := model.Incident{ID: 10, X: 0, Y: 0, OccurredAt: day(5)}
	pool := []model.Incident{
		{ID: 1, X: 50, Y: 0, OccurredAt: day(0)},
		{ID: 2, X: 30, Y: 0, OccurredAt: day(1)},
		{ID: 3, X: 500, Y: 0, OccurredAt: day(2)},
	}

	near, ok, err := eng.Nearest(cand, pool, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), near.ID)
	assert.InDelta(t, 30.0, near.Distance, 1e-9)
}

func TestNearest_NoneWithinRadius(t *testing.T) {
	eng := NewPlanar(nil)
	cand := model.Incident{ID: 10, X: 0, Y: 0}
	pool := []model.Incident{{ID: 1, X: 1000, Y: 0}}

	_, ok, err := eng.Nearest(cand, pool, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNearest_TieBreaksToLowestID(t *testing.T) {
	eng := NewPlanar(nil)
	cand := model.Incident{ID: 10, X: 0, Y: 0}

	// Two predecessors exactly 40 units away in opposite directions; the
	// result must not depend on pool order.
	a := model.Incident{ID: 7, X: 40, Y: 0}
	b := model.Incident{ID: 3, X: -40, Y: 0}

	for _, pool := range [][]model.Incident{{a, b}, {b, a}} {
		near, ok, err := eng.Nearest(cand, pool, 100)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(3), near.ID)
	}
}

func TestNearest_SkipsSelf(t *testing.T) {
	eng := NewPlanar(nil)
	cand := model.Incident{ID: 10, X: 0, Y: 0}
	pool := []model.Incident{
		{ID: 10, X: 0, Y: 0}, // same feature, distance zero
		{ID: 4, X: 20, Y: 0},
	}

	near, ok, err := eng.Nearest(cand, pool, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), near.ID)
}

func TestNearest_NegativeRadius(t *testing.T) {
	eng := NewPlanar(nil)
	_, _, err := eng.Nearest(model.Incident{ID: 1}, nil, -5)
	require.Error(t, err)
}

func TestZonePolygons(t *testing.T) {
	g, err := raster.NewGrid(raster.Extent{MaxX: 4, MaxY: 2}, 1)
	require.NoError(t, err)
	// Row 0: classes 1 1 2 2 / Row 1: classes 1 1 2 2.
	g.Set(0, 0, 1)
	g.Set(1, 0, 2)
	g.Set(2, 0, 8)
	g.Set(3, 0, 9)
	g.Set(0, 1, 1)
	g.Set(1, 1, 2)
	g.Set(2, 1, 8)
	g.Set(3, 1, 9)

	c, err := raster.EqualIntervalSlice(g, 2)
	require.NoError(t, err)

	eng := NewPlanar(nil)
	polys, err := eng.ZonePolygons(c)
	require.NoError(t, err)
	require.Len(t, polys, 2)

	// Each class merges into a single 2x2 rectangle.
	for cls, mp := range polys {
		require.Equal(t, 1, mp.NumPolygons(), "class %d", cls)
		b := mp.Bounds()
		assert.InDelta(t, 2.0, b.Max(0)-b.Min(0), 1e-9)
		assert.InDelta(t, 2.0, b.Max(1)-b.Min(1), 1e-9)
	}

	// Class 1 occupies the left half.
	b1 := polys[1].Bounds()
	assert.InDelta(t, 0.0, b1.Min(0), 1e-9)
	assert.InDelta(t, 2.0, b1.Max(0), 1e-9)
}

func TestZonePolygons_DisjointCells(t *testing.T) {
	g, err := raster.NewGrid(raster.Extent{MaxX: 3, MaxY: 1}, 1)
	require.NoError(t, err)
	// Two cells of the same class separated by no-data.
	g.Set(0, 0, 5)
	g.Set(2, 0, 5)

	c, err := raster.EqualIntervalSlice(g, 1)
	require.NoError(t, err)

	eng := NewPlanar(nil)
	polys, err := eng.ZonePolygons(c)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	assert.Equal(t, 2, polys[1].NumPolygons())
}
