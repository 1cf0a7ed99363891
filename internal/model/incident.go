// Package model defines the shared domain types for incident analysis:
// incidents, classifications, risk zones, connectors, and band tallies.
package model

import (
	"time"
)

// IncidentType labels an incident's role in a repeat/near-repeat pattern.
type IncidentType string

const (
	// TypeUnclassified is the initial state of every incident.
	TypeUnclassified IncidentType = ""
	// TypeOriginator marks an incident referenced as the predecessor of at
	// least one later incident.
	TypeOriginator IncidentType = "O"
	// TypeRepeat marks an incident within the repeat distance of its nearest
	// eligible predecessor.
	TypeRepeat IncidentType = "R"
	// TypeNearRepeat marks an incident beyond the repeat distance but within
	// the maximum spatial band of its nearest eligible predecessor.
	TypeNearRepeat IncidentType = "NR"
)

// Incident is an immutable input record: a point location with an
// occurrence timestamp. Duplicate timestamps are permitted and are handled
// as a cohort by the classifier.
type Incident struct {
	ID         int64     `json:"id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Classification is the mutable annotation attached to an incident after a
// classifier run. Band pointers are nil when the distance or day gap
// exceeds every configured threshold. OriginID is set for R/NR incidents
// and retained when the incident is later relabelled O, so the repeat
// relationship stays queryable.
type Classification struct {
	IncidentID       int64        `json:"incident_id"`
	Type             IncidentType `json:"type"`
	SpatialBand      *float64     `json:"spatial_band,omitempty"`
	TemporalBand     *float64     `json:"temporal_band,omitempty"`
	OriginID         *int64       `json:"origin_id,omitempty"`
	DistanceToOrigin *float64     `json:"distance_to_origin,omitempty"`
	// ZValue is the number of whole days between the earliest incident in
	// the set and this incident, used as the vertical axis when the
	// connectors are rendered in 3-D.
	ZValue int `json:"z_value"`
}

// HasOrigin reports whether the incident was matched to a predecessor.
func (c *Classification) HasOrigin() bool {
	return c.OriginID != nil
}

// Banded reports whether both band thresholds were assigned.
func (c *Classification) Banded() bool {
	return c.SpatialBand != nil && c.TemporalBand != nil
}
