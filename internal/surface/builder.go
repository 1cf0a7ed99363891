// Package surface builds decayed risk surfaces from recent incidents and
// turns them into ranked prediction zones.
package surface

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datastark/crime-analysis-toolbox/internal/decay"
	"github.com/datastark/crime-analysis-toolbox/internal/engine"
	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/raster"
	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

// ErrNoEligibleIncidents means no incident fell inside the temporal band
// ending at the reference date.
var ErrNoEligibleIncidents = eris.New("surface: no eligible incidents in window")

// PublishError marks a failure in the optional publish step. The zones
// are already persisted locally when this is returned.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("surface: publish failed: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher pushes a finished zone batch to an external service.
type Publisher interface {
	Publish(ctx context.Context, zones []model.Zone) error
}

// Params controls a surface build.
type Params struct {
	// SpatialBand is the decay radius in coordinate units. Cells farther
	// than this from an incident receive no contribution from it.
	SpatialBand float64
	// TemporalBand is the lookback window in days.
	TemporalBand int
	// CellSize is the raster resolution in coordinate units.
	CellSize float64
	// SliceCount is the number of equal-interval risk classes.
	SliceCount int
	// Policy selects how overlapping contributions combine.
	Policy decay.Policy
	// TimeDecay weights each incident by its age when true. When false
	// every incident in the window contributes at full strength.
	TimeDecay bool
	// ReferenceDate anchors the window. Zero means the newest incident.
	ReferenceDate time.Time
	// Workers caps build parallelism. Zero means GOMAXPROCS.
	Workers int
}

func (p Params) validate() error {
	if p.SpatialBand <= 0 {
		return eris.New("surface: spatial band must be positive")
	}
	if p.TemporalBand <= 0 {
		return eris.New("surface: temporal band must be positive")
	}
	if p.CellSize <= 0 {
		return eris.New("surface: cell size must be positive")
	}
	if p.SliceCount < 1 {
		return eris.New("surface: slice count must be at least 1")
	}
	if _, err := decay.ParsePolicy(string(p.Policy)); err != nil {
		return err
	}
	return nil
}

// Result describes a completed build.
type Result struct {
	BatchID       string
	ReferenceDate time.Time
	Eligible      int
	Zones         []model.Zone
	Classified    *raster.Classified
}

// Builder computes risk surfaces and persists the resulting zones.
type Builder struct {
	engine    engine.SpatialEngine
	store     store.Store
	publisher Publisher
	log       *zap.Logger
}

// New creates a Builder. The publisher may be nil to skip publishing.
func New(eng engine.SpatialEngine, st store.Store, pub Publisher) *Builder {
	return &Builder{
		engine:    eng,
		store:     st,
		publisher: pub,
		log:       zap.L().With(zap.String("component", "surface")),
	}
}

// Build loads incidents, accumulates the decayed surface, slices it into
// classes, polygonizes the classes into zones, and appends the new batch
// to the store. A publish failure is reported as *PublishError after the
// zones are already saved.
func (b *Builder) Build(ctx context.Context, p Params) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	incidents, err := b.store.ListIncidents(ctx, store.IncidentFilter{})
	if err != nil {
		return nil, err
	}

	ref := p.ReferenceDate
	if ref.IsZero() {
		for _, inc := range incidents {
			if inc.OccurredAt.After(ref) {
				ref = inc.OccurredAt
			}
		}
	}

	eligible := windowFilter(incidents, ref, p.TemporalBand)
	if len(eligible) == 0 {
		return nil, ErrNoEligibleIncidents
	}
	b.log.Info("window selected",
		zap.Time("reference", ref),
		zap.Int("eligible", len(eligible)),
		zap.Int("total", len(incidents)),
	)

	grid, err := b.accumulate(ctx, eligible, ref, p)
	if err != nil {
		return nil, err
	}
	grid.DropNonPositive()
	if _, _, ok := grid.Range(); !ok {
		return nil, ErrNoEligibleIncidents
	}

	classified, err := raster.EqualIntervalSlice(grid, p.SliceCount)
	if err != nil {
		return nil, err
	}

	polygons, err := b.engine.ZonePolygons(classified)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	zones := make([]model.Zone, 0, len(polygons))
	classes := make([]int, 0, len(polygons))
	for class := range polygons {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	for _, class := range classes {
		lo, hi := classified.ClassRange(class)
		zones = append(zones, model.Zone{
			ID:         uuid.NewString(),
			BatchID:    batchID,
			Class:      class,
			ClassCount: p.SliceCount,
			ValueMin:   lo,
			ValueMax:   hi,
			Status:     model.ZoneCurrent,
			CreatedAt:  ref,
			Geometry:   polygons[class],
		})
	}

	if err := b.store.AppendZones(ctx, zones); err != nil {
		return nil, err
	}
	b.log.Info("zone batch saved",
		zap.String("batch", batchID),
		zap.Int("zones", len(zones)),
	)

	res := &Result{
		BatchID:       batchID,
		ReferenceDate: ref,
		Eligible:      len(eligible),
		Zones:         zones,
		Classified:    classified,
	}

	if b.publisher != nil {
		if err := b.publisher.Publish(ctx, zones); err != nil {
			return res, &PublishError{Err: err}
		}
		b.log.Info("zone batch published", zap.String("batch", batchID))
	}
	return res, nil
}

// accumulate folds the per-incident decay fields into one grid. Workers
// each own a partial grid over a share of the incidents; partials are
// merged afterwards. Both policies are order-independent so the split is
// safe.
func (b *Builder) accumulate(ctx context.Context, incidents []model.Incident, ref time.Time, p Params) (*raster.Grid, error) {
	extent := pointExtent(incidents).Expand(p.SpatialBand)
	base, err := raster.NewGrid(extent, p.CellSize)
	if err != nil {
		return nil, err
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(incidents) {
		workers = len(incidents)
	}

	weight := decay.Unweighted
	if p.TimeDecay {
		weight = decay.TemporalWeight
	}

	partials := make([]*raster.Grid, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			part := raster.NewGridLike(base)
			for i := w; i < len(incidents); i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := b.addIncident(part, incidents[i], ref, p, weight); err != nil {
					return err
				}
			}
			partials[w] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "surface: accumulate")
	}

	for _, part := range partials {
		mergeGrid(base, part, p.Policy)
	}
	return base, nil
}

// addIncident folds one incident's decay field into a partial grid.
func (b *Builder) addIncident(part *raster.Grid, inc model.Incident, ref time.Time, p Params, weight decay.WeightFunc) error {
	field, err := b.engine.DistanceField(inc, part)
	if err != nil {
		return eris.Wrapf(err, "surface: distance field for incident %d", inc.ID)
	}
	age := math.Floor(ref.Sub(inc.OccurredAt).Hours() / 24)
	for row := 0; row < part.Rows; row++ {
		for col := 0; col < part.Cols; col++ {
			dist, ok := field.Value(col, row)
			if !ok {
				continue
			}
			contrib, ok := decay.Combined(dist, age, p.SpatialBand, weight)
			if !ok {
				continue
			}
			running, runningOK := part.Value(col, row)
			next, _ := decay.Aggregate(p.Policy, running, runningOK, contrib)
			part.Set(col, row, next)
		}
	}
	return nil
}

// mergeGrid folds src into dst under the aggregation policy.
func mergeGrid(dst, src *raster.Grid, policy decay.Policy) {
	for row := 0; row < dst.Rows; row++ {
		for col := 0; col < dst.Cols; col++ {
			v, ok := src.Value(col, row)
			if !ok {
				continue
			}
			running, runningOK := dst.Value(col, row)
			next, _ := decay.Aggregate(policy, running, runningOK, v)
			dst.Set(col, row, next)
		}
	}
}

// windowFilter keeps incidents with ref-band <= t <= ref.
func windowFilter(incidents []model.Incident, ref time.Time, bandDays int) []model.Incident {
	start := ref.AddDate(0, 0, -bandDays)
	var out []model.Incident
	for _, inc := range incidents {
		if inc.OccurredAt.Before(start) || inc.OccurredAt.After(ref) {
			continue
		}
		out = append(out, inc)
	}
	return out
}

// pointExtent returns the bounding box of the incident points.
func pointExtent(incidents []model.Incident) raster.Extent {
	ext := raster.Extent{
		MinX: incidents[0].X, MinY: incidents[0].Y,
		MaxX: incidents[0].X, MaxY: incidents[0].Y,
	}
	for _, inc := range incidents[1:] {
		if inc.X < ext.MinX {
			ext.MinX = inc.X
		}
		if inc.X > ext.MaxX {
			ext.MaxX = inc.X
		}
		if inc.Y < ext.MinY {
			ext.MinY = inc.Y
		}
		if inc.Y > ext.MaxY {
			ext.MaxY = inc.Y
		}
	}
	return ext
}
