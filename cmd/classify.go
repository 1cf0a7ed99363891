package main

import (
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/classify"
	"github.com/datastark/crime-analysis-toolbox/internal/config"
	"github.com/datastark/crime-analysis-toolbox/internal/engine"
	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/report"
	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Repeat and near-repeat classification",
}

var classifyRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify stored incidents and write the band summary report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		params, err := classifyParams(cmd)
		if err != nil {
			return err
		}

		incidents, err := st.ListIncidents(ctx, store.IncidentFilter{})
		if err != nil {
			return err
		}

		classifier := classify.New(engine.NewPlanar(engine.MetricByName(cfg.Classify.Metric)))
		res, err := classifier.Run(ctx, incidents, params)
		if err != nil {
			return err
		}

		if err := st.SaveClassifications(ctx, sortedClassifications(res.Classifications)); err != nil {
			return err
		}
		if err := st.ReplaceConnectors(ctx, res.Connectors); err != nil {
			return err
		}

		source := cfg.Store.Driver
		if cfg.Store.Driver == "sqlite" {
			source = cfg.Store.SQLitePath
		}
		path, err := report.Write(cfg.Report.Dir, report.Params{
			RunAt:      time.Now(),
			DataSource: source,
			MinDate:    res.MinDate,
			MaxDate:    res.MaxDate,
		}, res.Summary, res.Matrix)
		if err != nil {
			return err
		}
		zap.L().Info("summary report written", zap.String("path", path))

		report.Console(res.Summary)
		return nil
	},
}

// classifyParams resolves band thresholds from a preset file or the
// semicolon lists in config.
func classifyParams(cmd *cobra.Command) (classify.Params, error) {
	var p classify.Params

	presetFile := cfg.Classify.PresetFile
	presetName := cfg.Classify.Preset
	if cmd.Flags().Changed("preset") {
		presetName, _ = cmd.Flags().GetString("preset")
	}

	if presetName != "" {
		if presetFile == "" {
			return p, eris.New("classify.preset_file is required when a preset is named")
		}
		presets, err := config.LoadBandPresets(presetFile)
		if err != nil {
			return p, err
		}
		preset, ok := presets[presetName]
		if !ok {
			return p, eris.Errorf("preset %q not found in %s", presetName, presetFile)
		}
		p.SpatialBands = preset.SpatialBands
		p.TemporalBands = preset.TemporalBands
		p.RepeatDistance = preset.RepeatDistance
		return p, nil
	}

	spatial, err := config.ParseBandList(cfg.Classify.SpatialBands)
	if err != nil {
		return p, err
	}
	temporal, err := config.ParseBandList(cfg.Classify.TemporalBands)
	if err != nil {
		return p, err
	}
	p.SpatialBands = spatial
	p.TemporalBands = temporal
	p.RepeatDistance = cfg.Classify.RepeatDistance
	return p, nil
}

func sortedClassifications(m map[int64]*model.Classification) []model.Classification {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.Classification, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m[id])
	}
	return out
}

func init() {
	classifyRunCmd.Flags().String("preset", "", "named band preset from classify.preset_file")
	classifyCmd.AddCommand(classifyRunCmd)
	rootCmd.AddCommand(classifyCmd)
}
