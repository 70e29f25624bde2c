package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/core"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/ocr"
	"github.com/joseph-ayodele/searchable-pdf/internal/overlay"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

// pipeline is the processing stack assembled from configuration.
type pipeline struct {
	processor  *core.Processor
	normalizer *document.Normalizer
	defaults   entity.ProcessingOptions
	closers    []func()
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// buildPipeline wires engine, normalizer and compositor into a processor.
// jobs and blobs may be nil when only Convert is used.
func buildPipeline(ctx context.Context, cfg *common.Config, jobs repository.JobRepository, blobs storage.BlobStore, logger *slog.Logger) (*pipeline, error) {
	exec := runner.Exec{Logger: logger}
	engine, err := ocr.NewEngine(ctx, cfg.OCR, exec, logger)
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		defaults: entity.ProcessingOptions{DPI: cfg.OCR.DPI, Languages: cfg.OCR.Languages, GPU: cfg.OCR.GPU},
	}
	if c, ok := engine.(io.Closer); ok {
		p.closers = append(p.closers, func() { _ = c.Close() })
	}
	p.normalizer = document.NewNormalizer(document.Config{
		Pdftoppm:      cfg.OCR.Pdftoppm,
		MaxBytes:      cfg.OCR.MaxBytes,
		MaxPages:      cfg.OCR.MaxPages,
		MaxPixels:     cfg.OCR.MaxPixels,
		RenderTimeout: cfg.OCR.RenderTimeout,
	}, exec, logger)
	p.processor = core.NewProcessor(logger, jobs, blobs,
		p.normalizer,
		ocr.NewAdapter(engine, cfg.OCR.RecognizeTimeout, logger),
		overlay.NewCompositor(overlay.Options{MinConfidence: cfg.Worker.MinConfidence}, logger),
		core.Config{
			LeaseTTL:          cfg.Worker.LeaseTTL,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
			PageConcurrency:   cfg.Worker.PageConcurrency,
			Defaults:          p.defaults,
		})
	return p, nil
}

// openRegistry opens the configured job registry and migrates it.
func openRegistry(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*repository.Store, error) {
	store, err := repository.Open(ctx, cfg.Registry, logger)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
