package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// BandPreset is a named set of classification thresholds, kept in a
// standalone YAML file so analysts can version band schemes separately
// from the main config.
type BandPreset struct {
	SpatialBands   []float64 `yaml:"spatial_bands"`
	TemporalBands  []float64 `yaml:"temporal_bands"`
	RepeatDistance float64   `yaml:"repeat_distance"`
}

// LoadBandPresets reads a preset file mapping names to band schemes.
func LoadBandPresets(path string) (map[string]BandPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read preset file %s", path)
	}

	presets := map[string]BandPreset{}
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, eris.Wrapf(err, "config: parse preset file %s", path)
	}

	for name, p := range presets {
		if len(p.SpatialBands) == 0 || len(p.TemporalBands) == 0 {
			return nil, eris.Errorf("config: preset %q is missing band lists", name)
		}
	}
	return presets, nil
}
