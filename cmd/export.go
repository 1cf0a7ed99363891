package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datastark/crime-analysis-toolbox/internal/export"
	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write incident extracts for external tools",
}

var exportNearRepeatCmd = &cobra.Command{
	Use:   "nearrepeat <output.csv>",
	Short: "Export incidents as x,y,date input for the Near Repeat Calculator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		filter := store.IncidentFilter{}
		if fromStr, _ := cmd.Flags().GetString("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fmt.Errorf("bad from date %q: %w", fromStr, err)
			}
			filter.From = from.UTC()
		}
		if toStr, _ := cmd.Flags().GetString("to"); toStr != "" {
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				return fmt.Errorf("bad to date %q: %w", toStr, err)
			}
			filter.To = to.UTC()
		}

		incidents, err := st.ListIncidents(ctx, filter)
		if err != nil {
			return err
		}
		if err := export.WriteNearRepeatFile(args[0], incidents); err != nil {
			return err
		}

		fmt.Printf("wrote %d incidents to %s\n", len(incidents), args[0])
		return nil
	},
}

func init() {
	exportNearRepeatCmd.Flags().String("from", "", "earliest occurrence date, YYYY-MM-DD")
	exportNearRepeatCmd.Flags().String("to", "", "latest occurrence date, YYYY-MM-DD")
	exportCmd.AddCommand(exportNearRepeatCmd)
	rootCmd.AddCommand(exportCmd)
}
