// Package export writes incident extracts for external analysis tools.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// nearRepeatDateLayout matches the date format the Near Repeat
// Calculator expects.
const nearRepeatDateLayout = "01/02/2006"

// WriteNearRepeatCSV writes incidents as the three-column x,y,date file
// consumed by the Near Repeat Calculator. Rows are ordered by occurrence
// time then ID so repeated exports of the same data are identical.
func WriteNearRepeatCSV(w io.Writer, incidents []model.Incident) error {
	sorted := make([]model.Incident, len(incidents))
	copy(sorted, incidents)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "date"}); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, inc := range sorted {
		rec := []string{
			strconv.FormatFloat(inc.X, 'f', -1, 64),
			strconv.FormatFloat(inc.Y, 'f', -1, 64),
			inc.OccurredAt.Format(nearRepeatDateLayout),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "export: write incident %d", inc.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush")
	}
	return nil
}

// WriteNearRepeatFile writes the export to a file path.
func WriteNearRepeatFile(path string, incidents []model.Incident) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteNearRepeatCSV(f, incidents); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	return nil
}
