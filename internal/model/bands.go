package model

import "sort"

// BandMatrix tallies classified incidents by (spatial band, temporal band).
// Counts are cumulative across increasing thresholds: a band means "at most
// this distance/time", so an incident counted at (100, 7) also appears at
// (200, 7), (100, 14), and every coarser pair.
type BandMatrix struct {
	SpatialBands  []float64
	TemporalBands []float64
	counts        map[float64]map[float64]int
}

// NewBandMatrix creates a zeroed matrix over the given thresholds. Band
// lists are sorted defensively; callers may pass them in any order.
func NewBandMatrix(spatialBands, temporalBands []float64) *BandMatrix {
	sb := append([]float64(nil), spatialBands...)
	tb := append([]float64(nil), temporalBands...)
	sort.Float64s(sb)
	sort.Float64s(tb)

	counts := make(map[float64]map[float64]int, len(sb))
	for _, s := range sb {
		counts[s] = make(map[float64]int, len(tb))
		for _, t := range tb {
			counts[s][t] = 0
		}
	}
	return &BandMatrix{SpatialBands: sb, TemporalBands: tb, counts: counts}
}

// Add records an incident classified at the given band pair, incrementing
// that cell and every coarser cell on both axes.
func (m *BandMatrix) Add(spatialBand, temporalBand float64) {
	for _, s := range m.SpatialBands {
		if s < spatialBand {
			continue
		}
		for _, t := range m.TemporalBands {
			if t < temporalBand {
				continue
			}
			m.counts[s][t]++
		}
	}
}

// Count returns the tally at a band pair. Unknown thresholds return 0.
func (m *BandMatrix) Count(spatialBand, temporalBand float64) int {
	row, ok := m.counts[spatialBand]
	if !ok {
		return 0
	}
	return row[temporalBand]
}

// Summary aggregates the per-type incident counts for a classifier run.
type Summary struct {
	Total       int `json:"total"`
	Originators int `json:"originators"`
	Repeats     int `json:"repeats"`
	NearRepeats int `json:"near_repeats"`
}

// Percent returns 100*count/total, or 0 when the run was empty.
func (s Summary) Percent(count int) float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(s.Total)
}
