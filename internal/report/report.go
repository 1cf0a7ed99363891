// Package report renders the repeat/near-repeat summary: a type-count
// table plus count and percentage matrices indexed by spatial and temporal
// band, written as CSV.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

// timestampLayout matches the run-stamp format used in output file names.
const timestampLayout = "2006-01-02_15-04-05"

// Params carries the metadata printed in the report header.
type Params struct {
	RunAt      time.Time
	DataSource string
	MinDate    time.Time
	MaxDate    time.Time
}

// Render produces the full report text. It is a pure function of the
// matrix and totals; a zero-total run renders with all percentages at 0.
func Render(p Params, summary model.Summary, matrix *model.BandMatrix) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repeat and Near Repeat Incident Summary\n")
	fmt.Fprintf(&b, "Created %s\n\n", p.RunAt.Format(timestampLayout))

	fmt.Fprintf(&b, "Data Source: %s\n", p.DataSource)
	fmt.Fprintf(&b, "Date Range: %s-%s\n\n",
		p.MinDate.Format("2006-01-02"), p.MaxDate.Format("2006-01-02"))

	b.WriteString("Count and percentage of each type of incident\n")
	b.WriteString(", Count, Percentage\n")
	fmt.Fprintf(&b, "All Incidents,%d, 100\n", summary.Total)
	fmt.Fprintf(&b, "Originators,%d,%s\n", summary.Originators, pct(summary, summary.Originators))
	fmt.Fprintf(&b, "Near Repeats,%d,%s\n", summary.NearRepeats, pct(summary, summary.NearRepeats))
	fmt.Fprintf(&b, "Repeats,%d,%s\n\n", summary.Repeats, pct(summary, summary.Repeats))

	labels := bandLabels(matrix.TemporalBands)

	b.WriteString("Number of Repeat and Near-Repeat incidents per spatial and temporal band\n")
	fmt.Fprintf(&b, ",%s\n", labels)
	for _, s := range matrix.SpatialBands {
		b.WriteString(trimFloat(s))
		for _, t := range matrix.TemporalBands {
			fmt.Fprintf(&b, ",%d", matrix.Count(s, t))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	b.WriteString("Percentage of all incidents classified as Repeat or Near-Repeat and appearing in each spatial and temporal band\n")
	fmt.Fprintf(&b, ",%s\n", labels)
	for _, s := range matrix.SpatialBands {
		b.WriteString(trimFloat(s))
		for _, t := range matrix.TemporalBands {
			fmt.Fprintf(&b, ",%s", pct(summary, matrix.Count(s, t)))
		}
		b.WriteByte('\n')
	}

	return b.String()
}

// Write renders the report and writes it as Summary_<runstamp>.csv in dir.
// Returns the full path of the written file.
func Write(dir string, p Params, summary model.Summary, matrix *model.BandMatrix) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create directory %s", dir)
	}

	name := fmt.Sprintf("Summary_%s.csv", p.RunAt.Format(timestampLayout))
	path := filepath.Join(dir, name)

	content := Render(p, summary, matrix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}

	zap.L().Info("incident summary report written", zap.String("path", path))
	return path, nil
}

// Console prints a compact rendering of the totals to stdout.
func Console(summary model.Summary) {
	fmt.Printf("All incidents:  %d\n", summary.Total)
	fmt.Printf("Originators:    %d (%s%%)\n", summary.Originators, pct(summary, summary.Originators))
	fmt.Printf("Repeats:        %d (%s%%)\n", summary.Repeats, pct(summary, summary.Repeats))
	fmt.Printf("Near repeats:   %d (%s%%)\n", summary.NearRepeats, pct(summary, summary.NearRepeats))
}

// pct formats 100*count/total with fixed precision, 0 for an empty run.
func pct(s model.Summary, count int) string {
	return strconv.FormatFloat(s.Percent(count), 'f', 2, 64)
}

// trimFloat formats a band threshold without a trailing ".0" noise for
// whole values.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// bandLabels joins temporal thresholds into the matrix header row.
func bandLabels(bands []float64) string {
	parts := make([]string, len(bands))
	for i, b := range bands {
		parts[i] = trimFloat(b)
	}
	return strings.Join(parts, ",")
}
