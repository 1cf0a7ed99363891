package decay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("CUMULATIVE")
	require.NoError(t, err)
	assert.Equal(t, Cumulative, p)

	p, err = ParsePolicy("MAXIMUM")
	require.NoError(t, err)
	assert.Equal(t, Maximum, p)

	_, err = ParsePolicy("median")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown aggregation policy")
}

func TestSpatial(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		band     float64
		want     float64
		ok       bool
	}{
		{name: "at incident", distance: 0, band: 100, want: 99, ok: true},
		{name: "mid band", distance: 50, band: 100, want: 49, ok: true},
		{name: "just inside", distance: 98, band: 100, want: 1, ok: true},
		{name: "decay reaches zero", distance: 99, band: 100, ok: false},
		{name: "at band edge", distance: 100, band: 100, ok: false},
		{name: "beyond band", distance: 250, band: 100, ok: false},
		{name: "negative distance", distance: -1, band: 100, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Spatial(tt.distance, tt.band)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestSpatial_StrictlyDecreasing(t *testing.T) {
	prev, ok := Spatial(0, 500)
	require.True(t, ok)
	for d := 1.0; d < 498; d++ {
		v, ok := Spatial(d, 500)
		require.True(t, ok, "distance %f inside band", d)
		assert.Less(t, v, prev)
		prev = v
	}
}

func TestTemporalWeight(t *testing.T) {
	assert.InDelta(t, 2.0, TemporalWeight(0), 1e-9)
	assert.InDelta(t, 1.0, TemporalWeight(1), 1e-9)
	assert.InDelta(t, 0.5, TemporalWeight(3), 1e-9)

	// Strictly decreasing in age, approaching zero.
	prev := TemporalWeight(0)
	for age := 1.0; age <= 365; age++ {
		w := TemporalWeight(age)
		assert.Less(t, w, prev)
		prev = w
	}
	assert.Greater(t, TemporalWeight(100000), 0.0)
}

func TestCombined(t *testing.T) {
	// Inside band: spatial * temporal.
	v, ok := Combined(50, 3, 100, TemporalWeight)
	require.True(t, ok)
	assert.InDelta(t, 49*0.5, v, 1e-9)

	// Outside band: undefined regardless of age.
	_, ok = Combined(100, 0, 100, TemporalWeight)
	assert.False(t, ok)

	// Unweighted variant keeps the spatial value.
	v, ok = Combined(50, 300, 100, Unweighted)
	require.True(t, ok)
	assert.InDelta(t, 49, v, 1e-9)

	// Nil weight defaults to TemporalWeight.
	v, ok = Combined(0, 0, 100, nil)
	require.True(t, ok)
	assert.InDelta(t, 99*2, v, 1e-9)
}

func TestCombined_DecreasingInAge(t *testing.T) {
	prev, ok := Combined(10, 0, 100, TemporalWeight)
	require.True(t, ok)
	for age := 1.0; age <= 60; age++ {
		v, ok := Combined(10, age, 100, TemporalWeight)
		require.True(t, ok)
		assert.Less(t, v, prev)
		prev = v
	}
}

func TestAggregate_Cumulative(t *testing.T) {
	v, ok := Aggregate(Cumulative, 0, false, 3)
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-9)

	v, ok = Aggregate(Cumulative, v, ok, 4.5)
	require.True(t, ok)
	assert.InDelta(t, 7.5, v, 1e-9)
}

func TestAggregate_CumulativeCommutative(t *testing.T) {
	contribs := []float64{3, 1.5, 8, 0.25, 12}
	perm := []float64{12, 0.25, 8, 1.5, 3}

	var a, b float64
	var aOK, bOK bool
	for _, c := range contribs {
		a, aOK = Aggregate(Cumulative, a, aOK, c)
	}
	for _, c := range perm {
		b, bOK = Aggregate(Cumulative, b, bOK, c)
	}
	assert.InDelta(t, a, b, 1e-9)
}

func TestAggregate_Maximum(t *testing.T) {
	v, ok := Aggregate(Maximum, 0, false, 3)
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-9)

	// Larger contribution replaces.
	v, ok = Aggregate(Maximum, v, ok, 7)
	require.True(t, ok)
	assert.InDelta(t, 7.0, v, 1e-9)

	// Smaller contribution is ignored.
	v, ok = Aggregate(Maximum, v, ok, 2)
	require.True(t, ok)
	assert.InDelta(t, 7.0, v, 1e-9)

	// Tie keeps the running value (no-op).
	v, _ = Aggregate(Maximum, v, ok, 7)
	assert.InDelta(t, 7.0, v, 1e-9)
}

func TestAggregate_MaximumExact(t *testing.T) {
	// max over {A, B} at a cell equals max(A, B) exactly.
	a, b := 5.75, 9.125
	v, ok := Aggregate(Maximum, 0, false, a)
	v, _ = Aggregate(Maximum, v, ok, b)
	assert.Equal(t, b, v)

	v, ok = Aggregate(Maximum, 0, false, b)
	v, _ = Aggregate(Maximum, v, ok, a)
	assert.Equal(t, b, v)
}
