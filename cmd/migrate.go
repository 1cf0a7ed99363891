package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datastark/crime-analysis-toolbox/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func(st store.Store) { _ = st.Close() }(st)

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		fmt.Println("schema up to date")
		return nil
	},
}

func init() { rootCmd.AddCommand(migrateCmd) }
