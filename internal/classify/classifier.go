// Package classify implements the spatiotemporal repeat/near-repeat
// classifier: a chronological scan that matches each incident to its
// nearest temporally-eligible predecessor, assigns distance and day-gap
// bands, resolves originator relationships, and tallies band frequencies.
package classify

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/engine"
	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// ErrNoBands indicates an empty spatial or temporal band list.
var ErrNoBands = eris.New("classify: spatial and temporal band lists must be non-empty")

// Params configures a classifier run.
type Params struct {
	// SpatialBands are distance thresholds in incident units. The repeat
	// distance is folded in as the innermost band, so repeats land in
	// their own row of the frequency matrix.
	SpatialBands []float64
	// TemporalBands are day-gap thresholds.
	TemporalBands []float64
	// RepeatDistance is the boundary (inclusive) between a repeat and a
	// near-repeat.
	RepeatDistance float64
}

// bands returns the sorted threshold lists with the repeat distance merged
// into the spatial set. Inputs are never mutated.
func (p Params) bands() (spatial, temporal []float64) {
	spatial = append([]float64(nil), p.SpatialBands...)
	hasRepeat := false
	for _, b := range spatial {
		if b == p.RepeatDistance {
			hasRepeat = true
			break
		}
	}
	if !hasRepeat && p.RepeatDistance > 0 {
		spatial = append(spatial, p.RepeatDistance)
	}
	sort.Float64s(spatial)

	temporal = append([]float64(nil), p.TemporalBands...)
	sort.Float64s(temporal)
	return spatial, temporal
}

// Result is the full output of a classifier run.
type Result struct {
	// Classifications maps incident ID to its annotation. Every incident
	// in the input set has an entry, unclassified ones included.
	Classifications map[int64]*model.Classification
	Connectors      []model.Connector
	Matrix          *model.BandMatrix
	Summary         model.Summary
	MinDate         time.Time
	MaxDate         time.Time
}

// Classifier runs the spatiotemporal scan against a spatial engine.
type Classifier struct {
	engine engine.SpatialEngine
	log    *zap.Logger
}

// New creates a Classifier.
func New(eng engine.SpatialEngine) *Classifier {
	return &Classifier{
		engine: eng,
		log:    zap.L().With(zap.String("component", "classify")),
	}
}

// Run classifies the incident set. The scan is strictly chronological
// across distinct timestamps; within one timestamp cohort the predecessor
// pool is fixed before any candidate is matched, so cohort members never
// originate for each other. An engine failure aborts the run: a partial
// scan would corrupt the band tallies.
func (c *Classifier) Run(ctx context.Context, incidents []model.Incident, p Params) (*Result, error) {
	spatialBands, temporalBands := p.bands()
	if len(spatialBands) == 0 || len(temporalBands) == 0 {
		return nil, ErrNoBands
	}
	if p.RepeatDistance < 0 {
		return nil, eris.Errorf("classify: negative repeat distance %v", p.RepeatDistance)
	}

	res := &Result{
		Classifications: make(map[int64]*model.Classification, len(incidents)),
		Matrix:          model.NewBandMatrix(spatialBands, temporalBands),
	}
	if len(incidents) == 0 {
		c.log.Info("no incidents to classify")
		return res, nil
	}

	byID := make(map[int64]model.Incident, len(incidents))
	for _, inc := range incidents {
		byID[inc.ID] = inc
		res.Classifications[inc.ID] = &model.Classification{IncidentID: inc.ID}
	}

	dates := distinctDates(incidents)
	res.MinDate = dates[0]
	res.MaxDate = dates[len(dates)-1]

	maxSpatial := spatialBands[len(spatialBands)-1]
	maxTemporal := temporalBands[len(temporalBands)-1]

	// Chronological nearest-predecessor scan.
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "classify: scan cancelled")
		}

		cohort := cohortAt(incidents, d)
		pool := predecessorPool(incidents, d, maxTemporal)
		if len(pool) == 0 {
			continue
		}

		for _, cand := range cohort {
			near, ok, err := c.engine.Nearest(cand, pool, maxSpatial)
			if err != nil {
				return nil, eris.Wrapf(err, "classify: nearest predecessor for incident %d", cand.ID)
			}
			if !ok {
				continue
			}
			cl := res.Classifications[cand.ID]
			origin := near.ID
			dist := near.Distance
			cl.OriginID = &origin
			cl.DistanceToOrigin = &dist
		}
	}

	// Direct classification, banding, and connector emission.
	referenced := make(map[int64]bool)
	ids := sortedIDs(incidents)
	for _, id := range ids {
		inc := byID[id]
		cl := res.Classifications[id]
		cl.ZValue = wholeDays(res.MinDate, inc.OccurredAt)

		if !cl.HasOrigin() {
			continue
		}
		origin := byID[*cl.OriginID]
		referenced[origin.ID] = true

		if *cl.DistanceToOrigin <= p.RepeatDistance {
			cl.Type = model.TypeRepeat
		} else {
			cl.Type = model.TypeNearRepeat
		}

		dayGap := wholeDays(origin.OccurredAt, inc.OccurredAt)
		if b, ok := bandFor(*cl.DistanceToOrigin, spatialBands); ok {
			cl.SpatialBand = &b
		}
		if b, ok := bandFor(float64(dayGap), temporalBands); ok {
			cl.TemporalBand = &b
		}

		res.Connectors = append(res.Connectors, model.Connector{
			IncidentID: inc.ID,
			OriginID:   origin.ID,
			DayGap:     dayGap,
			Line:       connectorLine(origin, inc, res.MinDate),
		})
	}

	// Origin resolution: any incident another incident points at is an
	// originator, no matter what its own predecessor search found. Its
	// origin fields are retained so the relationship stays queryable.
	for id := range referenced {
		res.Classifications[id].Type = model.TypeOriginator
	}

	// Tabulation.
	for _, id := range ids {
		cl := res.Classifications[id]
		res.Summary.Total++
		switch {
		case cl.Type == model.TypeOriginator:
			res.Summary.Originators++
		case cl.HasOrigin() && cl.Banded():
			res.Matrix.Add(*cl.SpatialBand, *cl.TemporalBand)
			if cl.Type == model.TypeRepeat {
				res.Summary.Repeats++
			} else {
				res.Summary.NearRepeats++
			}
		}
	}

	c.log.Info("classification complete",
		zap.Int("incidents", res.Summary.Total),
		zap.Int("originators", res.Summary.Originators),
		zap.Int("repeats", res.Summary.Repeats),
		zap.Int("near_repeats", res.Summary.NearRepeats),
	)
	return res, nil
}

// bandFor returns the smallest threshold strictly greater than v. Bands
// must be sorted ascending. ok is false when v meets or exceeds every
// threshold, leaving the band undefined.
func bandFor(v float64, bands []float64) (float64, bool) {
	i := sort.SearchFloat64s(bands, v)
	// SearchFloat64s finds the first index with bands[i] >= v; an exact
	// match must advance to the next threshold ("strictly greater").
	for i < len(bands) && bands[i] <= v {
		i++
	}
	if i == len(bands) {
		return 0, false
	}
	return bands[i], true
}

// wholeDays returns the whole-day gap between two instants.
func wholeDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// connectorLine builds the 3-D line from origin to incident in
// (x, y, days-since-earliest) space.
func connectorLine(origin, inc model.Incident, minDate time.Time) *geom.LineString {
	return geom.NewLineStringFlat(geom.XYZ, []float64{
		origin.X, origin.Y, float64(wholeDays(minDate, origin.OccurredAt)),
		inc.X, inc.Y, float64(wholeDays(minDate, inc.OccurredAt)),
	})
}

// distinctDates returns the sorted distinct occurrence timestamps.
func distinctDates(incidents []model.Incident) []time.Time {
	seen := make(map[time.Time]bool, len(incidents))
	var dates []time.Time
	for _, inc := range incidents {
		t := inc.OccurredAt
		if !seen[t] {
			seen[t] = true
			dates = append(dates, t)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// cohortAt returns the incidents stamped exactly at d, in ID order.
func cohortAt(incidents []model.Incident, d time.Time) []model.Incident {
	var cohort []model.Incident
	for _, inc := range incidents {
		if inc.OccurredAt.Equal(d) {
			cohort = append(cohort, inc)
		}
	}
	sort.Slice(cohort, func(i, j int) bool { return cohort[i].ID < cohort[j].ID })
	return cohort
}

// predecessorPool returns incidents with d-maxTemporalBand <= t < d. The
// strict upper bound excludes same-instant matches while letting an
// earlier-timestamped same-day incident act as a predecessor.
func predecessorPool(incidents []model.Incident, d time.Time, maxTemporalDays float64) []model.Incident {
	tMin := d.Add(-time.Duration(maxTemporalDays * 24 * float64(time.Hour)))
	var pool []model.Incident
	for _, inc := range incidents {
		t := inc.OccurredAt
		if t.Before(d) && !t.Before(tMin) {
			pool = append(pool, inc)
		}
	}
	return pool
}

// sortedIDs returns incident IDs in ascending order for deterministic
// iteration.
func sortedIDs(incidents []model.Incident) []int64 {
	ids := make([]int64, 0, len(incidents))
	for _, inc := range incidents {
		ids = append(ids, inc.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
