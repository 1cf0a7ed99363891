// Package importer loads incident records from CSV, shapefile, and XLSX
// sources into the store.
package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// Options maps source columns onto incident fields.
type Options struct {
	// IDField names the incident ID column. Empty means IDs are assigned
	// sequentially in file order.
	IDField string
	// XField and YField name the coordinate columns.
	XField string
	YField string
	// DateField names the occurrence timestamp column.
	DateField string
	// DateLayout is the Go time layout of the date column.
	DateLayout string
	// Charset names the source text encoding for CSV input. Empty means
	// UTF-8.
	Charset string
	// SkipRows is the number of leading rows to skip after the header.
	SkipRows int
}

func (o Options) withDefaults() Options {
	if o.XField == "" {
		o.XField = "x"
	}
	if o.YField == "" {
		o.YField = "y"
	}
	if o.DateField == "" {
		o.DateField = "occurred_at"
	}
	if o.DateLayout == "" {
		o.DateLayout = "2006-01-02 15:04:05"
	}
	return o
}

// columnIndex finds a header column by case-insensitive name.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// rowsToIncidents converts tabular rows with a header into incidents.
func rowsToIncidents(header []string, rows [][]string, opts Options) ([]model.Incident, error) {
	opts = opts.withDefaults()

	xIdx := columnIndex(header, opts.XField)
	yIdx := columnIndex(header, opts.YField)
	dateIdx := columnIndex(header, opts.DateField)
	if xIdx < 0 || yIdx < 0 || dateIdx < 0 {
		return nil, eris.Errorf("importer: required columns %q, %q, %q not all present in header %v",
			opts.XField, opts.YField, opts.DateField, header)
	}
	idIdx := -1
	if opts.IDField != "" {
		if idIdx = columnIndex(header, opts.IDField); idIdx < 0 {
			return nil, eris.Errorf("importer: id column %q not found in header %v", opts.IDField, header)
		}
	}

	incidents := make([]model.Incident, 0, len(rows))
	var dateless int
	for n, row := range rows {
		if n < opts.SkipRows {
			continue
		}
		if blankRow(row) {
			continue
		}
		if dateIdx < len(row) && strings.TrimSpace(row[dateIdx]) == "" {
			dateless++
			continue
		}
		inc, err := parseRow(row, n, idIdx, xIdx, yIdx, dateIdx, opts.DateLayout)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	if dateless > 0 {
		zap.L().Warn("rejected rows without a timestamp",
			zap.Int("count", dateless),
			zap.String("component", "importer"),
		)
	}
	return incidents, nil
}

func parseRow(row []string, n, idIdx, xIdx, yIdx, dateIdx int, layout string) (model.Incident, error) {
	var inc model.Incident

	need := xIdx
	for _, i := range []int{yIdx, dateIdx, idIdx} {
		if i > need {
			need = i
		}
	}
	if len(row) <= need {
		return inc, eris.Errorf("importer: row %d has %d columns, need %d", n+1, len(row), need+1)
	}

	if idIdx >= 0 {
		id, err := strconv.ParseInt(strings.TrimSpace(row[idIdx]), 10, 64)
		if err != nil {
			return inc, eris.Wrapf(err, "importer: row %d: bad id %q", n+1, row[idIdx])
		}
		inc.ID = id
	} else {
		inc.ID = int64(n + 1)
	}

	x, err := strconv.ParseFloat(strings.TrimSpace(row[xIdx]), 64)
	if err != nil {
		return inc, eris.Wrapf(err, "importer: row %d: bad x %q", n+1, row[xIdx])
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(row[yIdx]), 64)
	if err != nil {
		return inc, eris.Wrapf(err, "importer: row %d: bad y %q", n+1, row[yIdx])
	}
	inc.X, inc.Y = x, y

	when, err := time.Parse(layout, strings.TrimSpace(row[dateIdx]))
	if err != nil {
		return inc, eris.Wrapf(err, "importer: row %d: bad date %q", n+1, row[dateIdx])
	}
	inc.OccurredAt = when.UTC()

	return inc, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
