package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "crime.db", cfg.Store.SQLitePath)
	assert.Equal(t, 1000.0, cfg.Surface.SpatialBand)
	assert.Equal(t, 28, cfg.Surface.TemporalBand)
	assert.Equal(t, "CUMULATIVE", cfg.Surface.Policy)
	assert.True(t, cfg.Surface.TimeDecay)
	assert.Equal(t, "400;800;1600", cfg.Classify.SpatialBands)
	assert.Equal(t, 50.0, cfg.Classify.RepeatDistance)
	assert.Equal(t, "euclidean", cfg.Classify.Metric)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	t.Setenv("CRIME_STORE_DRIVER", "postgres")
	t.Setenv("CRIME_SURFACE_SLICE_COUNT", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Surface.SliceCount)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
store:
  driver: postgres
  database_url: postgres://localhost/crime
classify:
  spatial_bands: "250;500"
  repeat_distance: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/crime", cfg.Store.DatabaseURL)
	assert.Equal(t, "250;500", cfg.Classify.SpatialBands)
	assert.Equal(t, 25.0, cfg.Classify.RepeatDistance)
	// Untouched sections keep defaults.
	assert.Equal(t, "7;14;28", cfg.Classify.TemporalBands)
}

func TestParseBandList(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []float64
		wantErr bool
	}{
		{name: "plain", in: "400;800;1600", want: []float64{400, 800, 1600}},
		{name: "spaces and trailing separator", in: " 7 ; 14 ; 28 ;", want: []float64{7, 14, 28}},
		{name: "single value", in: "100", want: []float64{100}},
		{name: "not a number", in: "400;abc", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "only separators", in: ";;", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBandList(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadBandPresets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bands.yaml")
	content := `
burglary:
  spatial_bands: [400, 800, 1600]
  temporal_bands: [7, 14, 28]
  repeat_distance: 50
vehicle_theft:
  spatial_bands: [250, 500]
  temporal_bands: [14, 28]
  repeat_distance: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	presets, err := LoadBandPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, []float64{400, 800, 1600}, presets["burglary"].SpatialBands)
	assert.Equal(t, 25.0, presets["vehicle_theft"].RepeatDistance)
}

func TestLoadBandPresetsRejectsMissingBands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bad:\n  repeat_distance: 10\n"), 0o644))

	_, err := LoadBandPresets(path)
	assert.Error(t, err)
}

func TestLoadBandPresetsMissingFile(t *testing.T) {
	_, err := LoadBandPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
