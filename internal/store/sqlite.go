package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. Geometry is kept
// as GeoJSON text so the file stays portable and inspectable.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS incidents (
	id          INTEGER PRIMARY KEY,
	x           REAL NOT NULL,
	y           REAL NOT NULL,
	occurred_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS classifications (
	incident_id    INTEGER PRIMARY KEY REFERENCES incidents(id),
	inc_type       TEXT NOT NULL DEFAULT '',
	spatial_band   REAL,
	temporal_band  REAL,
	origin_id      INTEGER,
	dist_to_origin REAL,
	z_value        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS connectors (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_id INTEGER NOT NULL,
	origin_id   INTEGER NOT NULL,
	day_gap     INTEGER NOT NULL,
	geom        TEXT
);

CREATE TABLE IF NOT EXISTS zones (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL,
	class       INTEGER NOT NULL,
	class_count INTEGER NOT NULL,
	value_min   REAL NOT NULL,
	value_max   REAL NOT NULL,
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	geom        TEXT
);

CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents(occurred_at);
CREATE INDEX IF NOT EXISTS idx_zones_status ON zones(status);
CREATE INDEX IF NOT EXISTS idx_zones_batch ON zones(batch_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertIncidents upserts incident records.
func (s *SQLiteStore) InsertIncidents(ctx context.Context, incidents []model.Incident) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin incident tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incidents (id, x, y, occurred_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			x = excluded.x, y = excluded.y, occurred_at = excluded.occurred_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare incident upsert")
	}
	defer stmt.Close()

	var n int64
	for _, inc := range incidents {
		res, err := stmt.ExecContext(ctx, inc.ID, inc.X, inc.Y, inc.OccurredAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: insert incident %d", inc.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return n, eris.Wrap(err, "sqlite: commit incidents")
	}
	return n, nil
}

// ListIncidents returns incidents ordered by occurrence time then ID.
func (s *SQLiteStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error) {
	query := `SELECT id, x, y, occurred_at FROM incidents WHERE 1=1`
	var args []any
	if !filter.From.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if !filter.To.IsZero() {
		query += ` AND occurred_at <= ?`
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY occurred_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list incidents")
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		var inc model.Incident
		var occurred string
		if err := rows.Scan(&inc.ID, &inc.X, &inc.Y, &occurred); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident row")
		}
		if inc.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse occurred_at for incident %d", inc.ID)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate incident rows")
	}
	return incidents, nil
}

// SaveClassifications replaces all classification annotations.
func (s *SQLiteStore) SaveClassifications(ctx context.Context, classifications []model.Classification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin classification tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM classifications`); err != nil {
		return eris.Wrap(err, "sqlite: clear classifications")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO classifications
			(incident_id, inc_type, spatial_band, temporal_band, origin_id, dist_to_origin, z_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare classification insert")
	}
	defer stmt.Close()

	for _, c := range classifications {
		_, err := stmt.ExecContext(ctx, c.IncidentID, string(c.Type),
			c.SpatialBand, c.TemporalBand, c.OriginID, c.DistanceToOrigin, c.ZValue)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert classification %d", c.IncidentID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit classifications")
	}
	return nil
}

// ListClassifications returns all stored annotations by incident ID.
func (s *SQLiteStore) ListClassifications(ctx context.Context) ([]model.Classification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_id, inc_type, spatial_band, temporal_band, origin_id, dist_to_origin, z_value
		FROM classifications ORDER BY incident_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list classifications")
	}
	defer rows.Close()

	var out []model.Classification
	for rows.Next() {
		var c model.Classification
		var incType string
		if err := rows.Scan(&c.IncidentID, &incType, &c.SpatialBand, &c.TemporalBand,
			&c.OriginID, &c.DistanceToOrigin, &c.ZValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan classification row")
		}
		c.Type = model.IncidentType(incType)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate classification rows")
	}
	return out, nil
}

// ReplaceConnectors swaps the connector layer for the latest run.
func (s *SQLiteStore) ReplaceConnectors(ctx context.Context, connectors []model.Connector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin connector tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM connectors`); err != nil {
		return eris.Wrap(err, "sqlite: clear connectors")
	}

	for _, conn := range connectors {
		var gj []byte
		if conn.Line != nil {
			if gj, err = geojson.Marshal(conn.Line); err != nil {
				return eris.Wrapf(err, "sqlite: encode connector %d", conn.IncidentID)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO connectors (incident_id, origin_id, day_gap, geom)
			VALUES (?, ?, ?, ?)`,
			conn.IncidentID, conn.OriginID, conn.DayGap, nullableText(gj))
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert connector %d", conn.IncidentID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit connectors")
	}
	return nil
}

// AppendZones flips current zones to superseded and appends the new set
// inside one transaction.
func (s *SQLiteStore) AppendZones(ctx context.Context, zones []model.Zone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin zone tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE zones SET status = ? WHERE status = ?`,
		string(model.ZoneSuperseded), string(model.ZoneCurrent),
	); err != nil {
		return eris.Wrap(err, "sqlite: supersede current zones")
	}

	for _, z := range zones {
		var gj []byte
		if z.Geometry != nil {
			if gj, err = geojson.Marshal(z.Geometry); err != nil {
				return eris.Wrapf(err, "sqlite: encode zone %s", z.ID)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO zones (id, batch_id, class, class_count, value_min, value_max, status, created_at, geom)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			z.ID, z.BatchID, z.Class, z.ClassCount, z.ValueMin, z.ValueMax,
			string(z.Status), z.CreatedAt.UTC().Format(time.RFC3339Nano), nullableText(gj))
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert zone %s", z.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit zones")
	}
	return nil
}

// CurrentZones returns the zones from the most recent successful run.
func (s *SQLiteStore) CurrentZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, class, class_count, value_min, value_max, status, created_at, geom
		FROM zones WHERE status = ? ORDER BY class`,
		string(model.ZoneCurrent))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query current zones")
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var status, created string
		var gj sql.NullString
		if err := rows.Scan(&z.ID, &z.BatchID, &z.Class, &z.ClassCount,
			&z.ValueMin, &z.ValueMax, &status, &created, &gj); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone row")
		}
		z.Status = model.ZoneStatus(status)
		if z.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse created_at for zone %s", z.ID)
		}
		if gj.Valid && gj.String != "" {
			var g geom.T
			if err := geojson.Unmarshal([]byte(gj.String), &g); err != nil {
				return nil, eris.Wrapf(err, "sqlite: decode zone geometry %s", z.ID)
			}
			if mp, ok := g.(*geom.MultiPolygon); ok {
				z.Geometry = mp
			}
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate zone rows")
	}
	return zones, nil
}

// ZoneHistory returns one row per run batch, newest first.
func (s *SQLiteStore) ZoneHistory(ctx context.Context) ([]ZoneBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, status, COUNT(*), MIN(created_at)
		FROM zones GROUP BY batch_id, status ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query zone history")
	}
	defer rows.Close()

	var batches []ZoneBatch
	for rows.Next() {
		var b ZoneBatch
		var status, created string
		if err := rows.Scan(&b.BatchID, &status, &b.Zones, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone batch row")
		}
		b.Status = model.ZoneStatus(status)
		if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse created_at for batch %s", b.BatchID)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate zone batch rows")
	}
	return batches, nil
}

// CheckZoneConsistency detects a flip that was never followed by an
// append.
func (s *SQLiteStore) CheckZoneConsistency(ctx context.Context) error {
	var current, superseded int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM zones`,
		string(model.ZoneCurrent), string(model.ZoneSuperseded),
	).Scan(&current, &superseded)
	if err != nil {
		return eris.Wrap(err, "sqlite: check zone consistency")
	}
	if superseded > 0 && current == 0 {
		return ErrInconsistentZoneState
	}
	return nil
}

// nullableText converts an empty byte slice to NULL.
func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
