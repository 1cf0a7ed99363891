package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datastark/crime-analysis-toolbox/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crime-analysis",
	Short: "Repeat and near-repeat incident analysis",
	Long:  "Builds decayed risk surfaces and prediction zones from recent incidents, and classifies incidents as originators, repeats, and near repeats.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
