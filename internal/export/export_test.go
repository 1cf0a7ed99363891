package export

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

func TestWriteNearRepeatCSV(t *testing.T) {
	later := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var sb strings.Builder
	err := WriteNearRepeatCSV(&sb, []model.Incident{
		{ID: 2, X: 300.25, Y: 400, OccurredAt: later},
		{ID: 1, X: 100.5, Y: 200, OccurredAt: earlier},
	})
	require.NoError(t, err)

	assert.Equal(t, "x,y,date\n100.5,200,03/01/2024\n300.25,400,03/02/2024\n", sb.String())
}

func TestWriteNearRepeatCSVTieBreaksOnID(t *testing.T) {
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var sb strings.Builder
	err := WriteNearRepeatCSV(&sb, []model.Incident{
		{ID: 9, X: 9, Y: 9, OccurredAt: when},
		{ID: 1, X: 1, Y: 1, OccurredAt: when},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1,"))
	assert.True(t, strings.HasPrefix(lines[2], "9,"))
}

func TestWriteNearRepeatCSVEmpty(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteNearRepeatCSV(&sb, nil))
	assert.Equal(t, "x,y,date\n", sb.String())
}

func TestWriteNearRepeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nr.csv")
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, WriteNearRepeatFile(path, []model.Incident{
		{ID: 1, X: 1, Y: 2, OccurredAt: when},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,2,03/01/2024")
}
