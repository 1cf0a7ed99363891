// Package store persists incidents, classifications, connectors, and the
// append-only risk zone history, backed by either Postgres/PostGIS or
// SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// ErrInconsistentZoneState signals the detectable partial-write anomaly:
// zones were flipped to superseded but no current set was appended.
var ErrInconsistentZoneState = eris.New("store: zone collection has superseded zones but no current set")

// IncidentFilter restricts incident listings to a date range. Zero bounds
// are open.
type IncidentFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// ZoneBatch summarizes one surface run in the zone history.
type ZoneBatch struct {
	BatchID   string           `json:"batch_id"`
	Status    model.ZoneStatus `json:"status"`
	Zones     int              `json:"zones"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store is the persistence interface consumed by the analysis commands.
type Store interface {
	// Incidents
	InsertIncidents(ctx context.Context, incidents []model.Incident) (int64, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error)

	// Classification write-back. Replaces any previous run's annotations.
	SaveClassifications(ctx context.Context, classifications []model.Classification) error
	ListClassifications(ctx context.Context) ([]model.Classification, error)

	// Connectors are derivative of a classifier run and replaced wholesale.
	ReplaceConnectors(ctx context.Context, connectors []model.Connector) error

	// AppendZones flips the existing current set to superseded and appends
	// the new set as current. The two steps are a single transaction where
	// the backend supports one; otherwise they are tightly sequenced and a
	// failure between them is detectable via CheckZoneConsistency.
	AppendZones(ctx context.Context, zones []model.Zone) error
	CurrentZones(ctx context.Context) ([]model.Zone, error)
	ZoneHistory(ctx context.Context) ([]ZoneBatch, error)

	// CheckZoneConsistency returns ErrInconsistentZoneState when a prior
	// run flipped the current set but failed before appending.
	CheckZoneConsistency(ctx context.Context) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
