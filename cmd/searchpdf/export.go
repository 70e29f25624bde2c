package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/searchable-pdf/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write the job report workbook (XLSX)",
	Example: `  searchpdf export -o jobs.xlsx --from 2026-01-01 --to 2026-01-31`,
	Args:    cobra.NoArgs,
	RunE:    runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "jobs.xlsx", "output XLSX path")
	exportCmd.Flags().String("from", "", "from date YYYY-MM-DD")
	exportCmd.Flags().String("to", "", "to date YYYY-MM-DD")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	var w export.Window
	for flag, dst := range map[string]**time.Time{"from": &w.From, "to": &w.To} {
		v, _ := cmd.Flags().GetString(flag)
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fmt.Errorf("invalid --%s date, use YYYY-MM-DD: %w", flag, err)
		}
		*dst = &t
	}

	ctx := cmd.Context()
	store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := export.NewService(store.Jobs, logger).ExportJobsXLSX(ctx, w)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
	return nil
}
