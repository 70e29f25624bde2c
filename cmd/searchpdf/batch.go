package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/async"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Submit every document under a directory and process them as jobs",
	Long: `batch records each accepted file as a job in the configured registry,
processes the jobs with a local worker pool and reports the outcome of each.
With --out the finished PDFs are copied out of the content store.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addOptionFlags(batchCmd)
	batchCmd.Flags().StringP("out", "o", "", "directory to copy searchable PDFs into")
	batchCmd.Flags().Bool("skip-hidden", true, "skip dotfiles and dot-directories")
	batchCmd.Flags().Duration("timeout", time.Hour, "overall timeout")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out")
	skipHidden, _ := cmd.Flags().GetBool("skip-hidden")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	blobs, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	p, err := buildPipeline(ctx, cfg, store.Jobs, blobs, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	queue := async.NewProcessorQueue(p.processor, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.JobTimeout),
		async.WithInstanceID("batch"),
	)
	svc := ingest.NewService(logger, store.Jobs, blobs, queue, p.normalizer, ingest.Config{
		MaxBytes: cfg.OCR.MaxBytes,
		Defaults: p.defaults,
	})

	results, stats, err := svc.SubmitDirectory(ctx, args[0], optionsFromFlags(cmd), skipHidden)
	if err != nil {
		queue.Shutdown(ctx)
		return err
	}
	ids := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		if r.Err == "" {
			ids = append(ids, r.JobID)
		}
	}
	// jobs that did not fit the queue are still QUEUED; keep handing them
	// over until every submitted job has finished
	if err := async.NewSweeper(store.Jobs, queue, 0, logger).Drain(ctx, ids, 250*time.Millisecond); err != nil {
		logger.Warn("batch did not finish", "error", err)
	}
	queue.Shutdown(ctx)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tJOB\tSTATE\tDETAIL")
	for _, r := range results {
		if r.Err != "" {
			fmt.Fprintf(tw, "%s\t-\tREJECTED\t%s\n", r.Path, r.Err)
			continue
		}
		view, err := svc.Status(ctx, r.JobID)
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\t?\t%v\n", r.Path, r.JobID, err)
			continue
		}
		detail := view.ErrorDetail
		if view.State == constants.JobStatusDone {
			detail = fmt.Sprintf("%d page(s)", view.PageCount)
			if outDir != "" {
				if path, err := copyOutput(ctx, svc, r.JobID, outDir); err != nil {
					detail += fmt.Sprintf(" (copy failed: %v)", err)
				} else {
					detail += " -> " + path
				}
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Path, r.JobID, view.State, detail)
	}
	_ = tw.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d matched=%d submitted=%d rejected=%d\n",
		stats.Scanned, stats.Matched, stats.Succeeded, stats.Failed)
	return nil
}

func copyOutput(ctx context.Context, svc *ingest.Service, id uuid.UUID, outDir string) (string, error) {
	out, err := svc.Retrieve(ctx, id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, out.Filename)
	return path, os.WriteFile(path, out.Data, 0o644)
}
