package model

import (
	"time"

	"github.com/twpayne/go-geom"
)

// ZoneStatus tags a zone's lifecycle state. Zones are never deleted; each
// run flips the previous current set to superseded and appends its own.
type ZoneStatus string

const (
	// ZoneCurrent marks zones from the most recent successful run.
	ZoneCurrent ZoneStatus = "current"
	// ZoneSuperseded marks zones retained as history.
	ZoneSuperseded ZoneStatus = "superseded"
)

// Zone is one ranked risk class from a surface run, as a polygon layer.
// Class 1 is the lowest risk range, ClassCount the highest.
type Zone struct {
	ID      string `json:"id"`
	BatchID string `json:"batch_id"`
	// Class is the 1-based equal-interval slice this polygon belongs to.
	Class      int              `json:"class"`
	ClassCount int              `json:"class_count"`
	ValueMin   float64          `json:"value_min"`
	ValueMax   float64          `json:"value_max"`
	Status     ZoneStatus       `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	Geometry   *geom.MultiPolygon `json:"-"`
}

// Connector is a line joining a repeat or near-repeat incident to its
// origin in (x, y, day-index) space. Purely derivative of a classifier run.
type Connector struct {
	IncidentID int64 `json:"incident_id"`
	OriginID   int64 `json:"origin_id"`
	// DayGap is the number of whole days between origin and incident.
	DayGap int              `json:"day_gap"`
	Line   *geom.LineString `json:"-"`
}
