package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
)

func testParams() Params {
	return Params{
		RunAt:      time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
		DataSource: "incidents",
		MinDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxDate:    time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC),
	}
}

func TestRender(t *testing.T) {
	m := model.NewBandMatrix([]float64{100, 500}, []float64{7, 30})
	m.Add(100, 7)
	m.Add(500, 30)
	summary := model.Summary{Total: 10, Originators: 2, Repeats: 1, NearRepeats: 1}

	out := Render(testParams(), summary, m)

	assert.Contains(t, out, "Repeat and Near Repeat Incident Summary")
	assert.Contains(t, out, "Created 2024-06-01_10-30-00")
	assert.Contains(t, out, "Data Source: incidents")
	assert.Contains(t, out, "Date Range: 2024-03-01-2024-05-28")
	assert.Contains(t, out, "All Incidents,10, 100")
	assert.Contains(t, out, "Originators,2,20.00")
	assert.Contains(t, out, "Repeats,1,10.00")
	assert.Contains(t, out, "Near Repeats,1,10.00")

	// Matrix header and cumulative rows.
	assert.Contains(t, out, ",7,30")
	assert.Contains(t, out, "100,1,1\n")
	assert.Contains(t, out, "500,1,2\n")

	// Percentage matrix row for the 500 band.
	assert.Contains(t, out, "500,10.00,20.00\n")
}

func TestRender_ZeroTotal(t *testing.T) {
	m := model.NewBandMatrix([]float64{100}, []float64{7})
	out := Render(testParams(), model.Summary{}, m)

	assert.Contains(t, out, "All Incidents,0, 100")
	assert.Contains(t, out, "Originators,0,0.00")
	assert.Contains(t, out, "100,0\n")
	assert.NotContains(t, out, "NaN")
	assert.NotContains(t, out, "Inf")
}

func TestRender_BandLabelFormatting(t *testing.T) {
	m := model.NewBandMatrix([]float64{250.5, 100}, []float64{7})
	out := Render(testParams(), model.Summary{Total: 1}, m)

	// Bands render sorted, whole values without decimals.
	assert.Contains(t, out, "100,0\n")
	assert.Contains(t, out, "250.5,0\n")
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	m := model.NewBandMatrix([]float64{100}, []float64{7})
	summary := model.Summary{Total: 3, Originators: 1, NearRepeats: 1}

	path, err := Write(dir, testParams(), summary, m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Summary_2024-06-01_10-30-00.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Repeat and Near Repeat Incident Summary"))
	assert.Contains(t, string(data), "Originators,1,33.33")
}
