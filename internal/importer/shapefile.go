package importer

import (
	"strconv"
	"strings"
	"time"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// ReadShapefile loads incidents from a point shapefile. Coordinates come
// from the geometry; the occurrence date and optional ID come from the
// attribute table.
func ReadShapefile(path string, opts Options) ([]model.Incident, error) {
	opts = opts.withDefaults()

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dateIdx := fieldIndex(reader, opts.DateField)
	if dateIdx < 0 {
		return nil, eris.Errorf("importer: date field %q not found in shapefile", opts.DateField)
	}
	idIdx := -1
	if opts.IDField != "" {
		if idIdx = fieldIndex(reader, opts.IDField); idIdx < 0 {
			return nil, eris.Errorf("importer: id field %q not found in shapefile", opts.IDField)
		}
	}

	log := zap.L().With(zap.String("component", "importer"))

	var incidents []model.Incident
	var skipped, dateless int
	for reader.Next() {
		n, shape := reader.Shape()

		x, y, ok := pointCoords(shape)
		if !ok {
			skipped++
			continue
		}

		raw := strings.TrimSpace(reader.ReadAttribute(n, dateIdx))
		if raw == "" {
			dateless++
			continue
		}
		when, err := time.Parse(opts.DateLayout, raw)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: record %d: bad date %q", n, raw)
		}

		inc := model.Incident{ID: int64(n + 1), X: x, Y: y, OccurredAt: when.UTC()}
		if idIdx >= 0 {
			rawID := strings.TrimSpace(reader.ReadAttribute(n, idIdx))
			id, err := parseInt(rawID)
			if err != nil {
				return nil, eris.Wrapf(err, "importer: record %d: bad id %q", n, rawID)
			}
			inc.ID = id
		}

		incidents = append(incidents, inc)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "importer: read shapefile")
	}

	if skipped > 0 {
		log.Warn("skipped non-point shapes", zap.Int("count", skipped), zap.String("path", path))
	}
	if dateless > 0 {
		log.Warn("rejected records without a timestamp", zap.Int("count", dateless), zap.String("path", path))
	}
	return incidents, nil
}

// fieldIndex finds an attribute field by case-insensitive name.
func fieldIndex(r *shp.Reader, name string) int {
	for i, f := range r.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// pointCoords extracts coordinates from point-family shapes.
func pointCoords(shape shp.Shape) (x, y float64, ok bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return s.X, s.Y, true
	case *shp.PointZ:
		return s.X, s.Y, true
	case *shp.PointM:
		return s.X, s.Y, true
	default:
		return 0, 0, false
	}
}

func parseInt(s string) (int64, error) {
	// DBF numeric fields may render as "42.0".
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strconv.ParseInt(s, 10, 64)
}
