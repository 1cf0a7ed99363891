package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/decay"
	"github.com/datastark/crime-analysis-toolbox/internal/engine"
	"github.com/datastark/crime-analysis-toolbox/internal/surface"
	"github.com/datastark/crime-analysis-toolbox/pkg/featureservice"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Prediction zone management",
}

var zonesBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a new prediction zone batch from recent incidents",
	Long:  "Accumulates a decayed risk surface over incidents in the lookback window, slices it into equal-interval classes, and saves the resulting zones as the current batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		params, err := surfaceParams(cmd)
		if err != nil {
			return err
		}

		var pub surface.Publisher
		publish, _ := cmd.Flags().GetBool("publish")
		if publish || cfg.Publish.Enabled {
			if cfg.Publish.URL == "" {
				return errors.New("publish.url is not configured")
			}
			pub = featureservice.NewClient(cfg.Publish.URL, cfg.Publish.Token,
				featureservice.WithRateLimit(cfg.Publish.RequestsPerSecond))
		}

		builder := surface.New(engine.NewPlanar(engine.MetricByName(cfg.Classify.Metric)), st, pub)
		res, err := builder.Build(ctx, params)

		var pubErr *surface.PublishError
		if errors.As(err, &pubErr) {
			zap.L().Warn("zones saved locally but publish failed", zap.Error(pubErr))
			err = nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("batch %s: %d zones from %d incidents (reference %s)\n",
			res.BatchID, len(res.Zones), res.Eligible,
			res.ReferenceDate.Format("2006-01-02"))
		return nil
	},
}

var zonesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List zone batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		batches, err := st.ZoneHistory(ctx)
		if err != nil {
			return err
		}
		for _, b := range batches {
			fmt.Printf("%s  %-10s  %3d zones  %s\n",
				b.CreatedAt.Format("2006-01-02 15:04"), b.Status, b.Zones, b.BatchID)
		}
		return nil
	},
}

// surfaceParams merges config defaults with command flags.
func surfaceParams(cmd *cobra.Command) (surface.Params, error) {
	p := surface.Params{
		SpatialBand:  cfg.Surface.SpatialBand,
		TemporalBand: cfg.Surface.TemporalBand,
		CellSize:     cfg.Surface.CellSize,
		SliceCount:   cfg.Surface.SliceCount,
		TimeDecay:    cfg.Surface.TimeDecay,
		Workers:      cfg.Surface.Workers,
	}

	if f := cmd.Flags(); f.Changed("band") {
		p.SpatialBand, _ = f.GetFloat64("band")
	}
	if f := cmd.Flags(); f.Changed("window") {
		p.TemporalBand, _ = f.GetInt("window")
	}
	if f := cmd.Flags(); f.Changed("cell-size") {
		p.CellSize, _ = f.GetFloat64("cell-size")
	}
	if f := cmd.Flags(); f.Changed("slices") {
		p.SliceCount, _ = f.GetInt("slices")
	}
	if f := cmd.Flags(); f.Changed("no-decay") {
		noDecay, _ := f.GetBool("no-decay")
		p.TimeDecay = !noDecay
	}

	policyName := cfg.Surface.Policy
	if cmd.Flags().Changed("policy") {
		policyName, _ = cmd.Flags().GetString("policy")
	}
	policy, err := decay.ParsePolicy(policyName)
	if err != nil {
		return p, err
	}
	p.Policy = policy

	if refStr, _ := cmd.Flags().GetString("reference-date"); refStr != "" {
		ref, err := time.Parse("2006-01-02", refStr)
		if err != nil {
			return p, fmt.Errorf("bad reference date %q: %w", refStr, err)
		}
		p.ReferenceDate = ref.UTC()
	}
	return p, nil
}

func init() {
	zonesBuildCmd.Flags().Float64("band", 0, "spatial band in coordinate units")
	zonesBuildCmd.Flags().Int("window", 0, "temporal band in days")
	zonesBuildCmd.Flags().Float64("cell-size", 0, "raster cell size in coordinate units")
	zonesBuildCmd.Flags().Int("slices", 0, "number of risk classes")
	zonesBuildCmd.Flags().String("policy", "", "aggregation policy: CUMULATIVE or MAXIMUM")
	zonesBuildCmd.Flags().Bool("no-decay", false, "disable temporal decay weighting")
	zonesBuildCmd.Flags().String("reference-date", "", "window end date, YYYY-MM-DD (newest incident when empty)")
	zonesBuildCmd.Flags().Bool("publish", false, "push the batch to the configured feature service")

	zonesCmd.AddCommand(zonesBuildCmd, zonesHistoryCmd)
	rootCmd.AddCommand(zonesCmd)
}
