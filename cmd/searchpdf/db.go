package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the job registry schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		store, err := openRegistry(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Registry.Driver)
		return nil
	},
}

var dbHealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Ping the job registry and print job counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := openRegistry(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.HealthCheck(ctx, 3*time.Second); err != nil {
			return fmt.Errorf("DB health: FAIL (%w)", err)
		}
		s, err := store.Jobs.Stats(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "DB health: OK")
		fmt.Fprintf(out, "jobs: total=%d queued=%d processing=%d done=%d failed=%d success_rate=%.1f%%\n",
			s.Total, s.Queued, s.Processing, s.Done, s.Failed, s.SuccessRate())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, dbHealthCmd)
}
