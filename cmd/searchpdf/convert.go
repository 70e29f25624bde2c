package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert one image or PDF into a searchable PDF",
	Example: `  # Writes searchable_invoice.pdf next to the input
  searchpdf convert invoice.png

  # German and English at 400 DPI
  searchpdf convert scan.pdf --lang de,en --dpi 400 -o out.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	addOptionFlags(convertCmd)
	convertCmd.Flags().StringP("output", "o", "", "output path (default: searchable_<name>.pdf next to the input)")
	convertCmd.Flags().Duration("timeout", 10*time.Minute, "processing timeout")
}

func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("dpi", 0, "rasterization resolution (default from config)")
	cmd.Flags().StringSlice("lang", nil, "recognition languages (default from config)")
	cmd.Flags().Bool("gpu", false, "ask the engine to use a GPU")
}

func optionsFromFlags(cmd *cobra.Command) entity.ProcessingOptions {
	dpi, _ := cmd.Flags().GetInt("dpi")
	langs, _ := cmd.Flags().GetStringSlice("lang")
	gpu, _ := cmd.Flags().GetBool("gpu")
	return entity.ProcessingOptions{DPI: dpi, Languages: langs, GPU: gpu}
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = filepath.Join(filepath.Dir(args[0]), ingest.DownloadName(filepath.Base(args[0])))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	p, err := buildPipeline(ctx, cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	pages, err := convertFile(ctx, p, args[0], output, optionsFromFlags(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d page(s) -> %s\n", args[0], pages, output)
	return nil
}

// convertFile runs the pipeline on a local file and writes the result.
func convertFile(ctx context.Context, p *pipeline, path, output string, opts entity.ProcessingOptions) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	docType, err := detectDocType(path, data)
	if err != nil {
		return 0, err
	}
	out, pages, err := p.processor.Convert(ctx, data, docType, opts)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return 0, err
	}
	return pages, os.WriteFile(output, out, 0o644)
}

func detectDocType(path string, data []byte) (constants.DocType, error) {
	byExt, ok := constants.MapExtToDocType(constants.ExtOf(path))
	if !ok {
		return "", common.NewKindError(common.KindInvalidDocument, path, ingest.ErrUnsupportedType)
	}
	sniffed, ok := constants.SniffDocType(data)
	if !ok || sniffed != byExt {
		return "", common.KindErrorf(common.KindInvalidDocument, "%s: content does not match its extension", path)
	}
	return byExt, nil
}
