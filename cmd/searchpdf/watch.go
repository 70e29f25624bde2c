package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Convert files as they appear in the watched directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addOptionFlags(watchCmd)
	watchCmd.Flags().StringP("out", "o", "", "directory for searchable PDFs (required)")
	watchCmd.Flags().Bool("initial-scan", true, "convert files already present at start")
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "quiet period before a changed file is converted")
	_ = watchCmd.MarkFlagRequired("out")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out")
	initial, _ := cmd.Flags().GetBool("initial-scan")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	outAbs, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := buildPipeline(ctx, cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: initial,
		Debounce:    debounce,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	opts := optionsFromFlags(cmd)
	logger.Info("watching", "roots", args, "out", outAbs)

	for {
		select {
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			if under(outAbs, path) {
				continue
			}
			output := filepath.Join(outAbs, ingest.DownloadName(filepath.Base(path)))
			pages, err := convertFile(ctx, p, path, output, opts)
			if err != nil {
				logger.Error("convert failed", "path", path, "error", err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d page(s) -> %s\n", path, pages, output)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// under reports whether path is inside dir.
func under(dir, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
