package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datastark/crime-analysis-toolbox/internal/model"
	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and zone batch health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		incidents, err := st.ListIncidents(ctx, store.IncidentFilter{})
		if err != nil {
			return err
		}
		fmt.Printf("incidents:       %d\n", len(incidents))
		if len(incidents) > 0 {
			fmt.Printf("date range:      %s to %s\n",
				incidents[0].OccurredAt.Format("2006-01-02"),
				incidents[len(incidents)-1].OccurredAt.Format("2006-01-02"))
		}

		classifications, err := st.ListClassifications(ctx)
		if err != nil {
			return err
		}
		var sum model.Summary
		sum.Total = len(classifications)
		for _, c := range classifications {
			switch c.Type {
			case model.TypeOriginator:
				sum.Originators++
			case model.TypeRepeat:
				sum.Repeats++
			case model.TypeNearRepeat:
				sum.NearRepeats++
			}
		}
		fmt.Printf("classifications: %d (%d originators, %d repeats, %d near repeats)\n",
			sum.Total, sum.Originators, sum.Repeats, sum.NearRepeats)

		current, err := st.CurrentZones(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("current zones:   %d\n", len(current))

		if err := st.CheckZoneConsistency(ctx); err != nil {
			fmt.Printf("zone state:      INCONSISTENT (%v)\n", err)
			return nil
		}
		fmt.Println("zone state:      ok")
		return nil
	},
}

func init() { rootCmd.AddCommand(statusCmd) }
