package store

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/db"
	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// PostgresStore implements Store on Postgres with PostGIS geometry.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore over an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS incidents (
	id          BIGINT PRIMARY KEY,
	x           DOUBLE PRECISION NOT NULL,
	y           DOUBLE PRECISION NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	geom        geometry(Point)
);

CREATE TABLE IF NOT EXISTS classifications (
	incident_id    BIGINT PRIMARY KEY REFERENCES incidents(id),
	inc_type       TEXT NOT NULL DEFAULT '',
	spatial_band   DOUBLE PRECISION,
	temporal_band  DOUBLE PRECISION,
	origin_id      BIGINT,
	dist_to_origin DOUBLE PRECISION,
	z_value        BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS connectors (
	id          BIGSERIAL PRIMARY KEY,
	incident_id BIGINT NOT NULL,
	origin_id   BIGINT NOT NULL,
	day_gap     BIGINT NOT NULL,
	geom        geometry(LineStringZ)
);

CREATE TABLE IF NOT EXISTS zones (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL,
	class       INT NOT NULL,
	class_count INT NOT NULL,
	value_min   DOUBLE PRECISION NOT NULL,
	value_max   DOUBLE PRECISION NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	geom        geometry(MultiPolygon)
);

CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents(occurred_at);
CREATE INDEX IF NOT EXISTS idx_incidents_geom ON incidents USING gist (geom);
CREATE INDEX IF NOT EXISTS idx_zones_status ON zones(status);
CREATE INDEX IF NOT EXISTS idx_zones_batch ON zones(batch_id);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// InsertIncidents bulk-upserts incident records. Point geometry is
// encoded Go-side so the rows go through the COPY path.
func (s *PostgresStore) InsertIncidents(ctx context.Context, incidents []model.Incident) (int64, error) {
	rows := make([][]any, 0, len(incidents))
	for _, inc := range incidents {
		pt, err := marshalGeom(geom.NewPointFlat(geom.XY, []float64{inc.X, inc.Y}))
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{inc.ID, inc.X, inc.Y, inc.OccurredAt, pt})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "incidents",
		Columns:      []string{"id", "x", "y", "occurred_at", "geom"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert incidents")
	}
	return n, nil
}

// ListIncidents returns incidents ordered by occurrence time then ID.
func (s *PostgresStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error) {
	sql := `SELECT id, x, y, occurred_at FROM incidents WHERE 1=1`
	var args []any
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		sql += ` AND occurred_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		sql += ` AND occurred_at <= $` + strconv.Itoa(len(args))
	}
	sql += ` ORDER BY occurred_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list incidents")
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		var inc model.Incident
		if err := rows.Scan(&inc.ID, &inc.X, &inc.Y, &inc.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident row")
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate incident rows")
	}
	return incidents, nil
}

// SaveClassifications replaces the classification annotations in one
// transaction, so a reader never sees a half-written run.
func (s *PostgresStore) SaveClassifications(ctx context.Context, classifications []model.Classification) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin classification tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM classifications`); err != nil {
		return eris.Wrap(err, "postgres: clear classifications")
	}

	for _, c := range classifications {
		_, err := tx.Exec(ctx, `
			INSERT INTO classifications
				(incident_id, inc_type, spatial_band, temporal_band, origin_id, dist_to_origin, z_value)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.IncidentID, string(c.Type), c.SpatialBand, c.TemporalBand,
			c.OriginID, c.DistanceToOrigin, c.ZValue,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert classification %d", c.IncidentID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit classifications")
	}
	return nil
}

// ListClassifications returns all stored annotations by incident ID.
func (s *PostgresStore) ListClassifications(ctx context.Context) ([]model.Classification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT incident_id, inc_type, spatial_band, temporal_band, origin_id, dist_to_origin, z_value
		FROM classifications ORDER BY incident_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list classifications")
	}
	defer rows.Close()

	var out []model.Classification
	for rows.Next() {
		var c model.Classification
		var incType string
		if err := rows.Scan(&c.IncidentID, &incType, &c.SpatialBand, &c.TemporalBand,
			&c.OriginID, &c.DistanceToOrigin, &c.ZValue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan classification row")
		}
		c.Type = model.IncidentType(incType)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate classification rows")
	}
	return out, nil
}

// ReplaceConnectors swaps the connector layer for the latest run.
func (s *PostgresStore) ReplaceConnectors(ctx context.Context, connectors []model.Connector) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin connector tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM connectors`); err != nil {
		return eris.Wrap(err, "postgres: clear connectors")
	}

	for _, conn := range connectors {
		var wkb []byte
		if conn.Line != nil {
			if wkb, err = marshalGeom(conn.Line); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO connectors (incident_id, origin_id, day_gap, geom)
			VALUES ($1, $2, $3, ST_GeomFromEWKB($4))`,
			conn.IncidentID, conn.OriginID, conn.DayGap, wkb,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert connector %d", conn.IncidentID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit connectors")
	}
	return nil
}

// AppendZones flips current zones to superseded and appends the new set,
// all inside one transaction so the status flags can never be observed in
// a half-flipped state.
func (s *PostgresStore) AppendZones(ctx context.Context, zones []model.Zone) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin zone tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE zones SET status = $1 WHERE status = $2`,
		string(model.ZoneSuperseded), string(model.ZoneCurrent),
	); err != nil {
		return eris.Wrap(err, "postgres: supersede current zones")
	}

	for _, z := range zones {
		var wkb []byte
		if z.Geometry != nil {
			if wkb, err = marshalGeom(z.Geometry); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO zones (id, batch_id, class, class_count, value_min, value_max, status, created_at, geom)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ST_GeomFromEWKB($9))`,
			z.ID, z.BatchID, z.Class, z.ClassCount, z.ValueMin, z.ValueMax,
			string(z.Status), z.CreatedAt, wkb,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert zone %s", z.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit zones")
	}

	zap.L().Info("zone collection updated",
		zap.Int("zones", len(zones)),
		zap.String("component", "store.postgres"),
	)
	return nil
}

// CurrentZones returns the zones from the most recent successful run.
func (s *PostgresStore) CurrentZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, class, class_count, value_min, value_max, status, created_at, ST_AsEWKB(geom)
		FROM zones WHERE status = $1 ORDER BY class`,
		string(model.ZoneCurrent))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query current zones")
	}
	defer rows.Close()

	return scanZones(rows)
}

// ZoneHistory returns one row per run batch, newest first.
func (s *PostgresStore) ZoneHistory(ctx context.Context) ([]ZoneBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id, status, COUNT(*), MIN(created_at)
		FROM zones GROUP BY batch_id, status ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query zone history")
	}
	defer rows.Close()

	var batches []ZoneBatch
	for rows.Next() {
		var b ZoneBatch
		var status string
		if err := rows.Scan(&b.BatchID, &status, &b.Zones, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone batch row")
		}
		b.Status = model.ZoneStatus(status)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate zone batch rows")
	}
	return batches, nil
}

// CheckZoneConsistency detects a flip that was never followed by an
// append.
func (s *PostgresStore) CheckZoneConsistency(ctx context.Context) error {
	var current, superseded int
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2)
		FROM zones`,
		string(model.ZoneCurrent), string(model.ZoneSuperseded),
	).Scan(&current, &superseded)
	if err != nil {
		return eris.Wrap(err, "postgres: check zone consistency")
	}
	if superseded > 0 && current == 0 {
		return ErrInconsistentZoneState
	}
	return nil
}

// scanZones reads zone rows including EWKB geometry.
func scanZones(rows pgx.Rows) ([]model.Zone, error) {
	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var status string
		var wkb []byte
		if err := rows.Scan(&z.ID, &z.BatchID, &z.Class, &z.ClassCount,
			&z.ValueMin, &z.ValueMax, &status, &z.CreatedAt, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone row")
		}
		z.Status = model.ZoneStatus(status)
		if len(wkb) > 0 {
			g, err := ewkb.Unmarshal(wkb)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: decode zone geometry %s", z.ID)
			}
			if mp, ok := g.(*geom.MultiPolygon); ok {
				z.Geometry = mp
			}
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate zone rows")
	}
	return zones, nil
}

// marshalGeom encodes a geometry as EWKB.
func marshalGeom(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode geometry")
	}
	return data, nil
}

// itoa avoids importing strconv for single-digit placeholder indices.
func itoa(n int) string {
	return string(rune('0' + n))
}
