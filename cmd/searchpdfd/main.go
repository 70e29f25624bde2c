package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/searchable-pdf/internal/async"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/core"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/export"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
	"github.com/joseph-ayodele/searchable-pdf/internal/ocr"
	"github.com/joseph-ayodele/searchable-pdf/internal/overlay"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
	"github.com/joseph-ayodele/searchable-pdf/internal/server"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: common.ParseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("searchpdfd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.Registry, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.HealthCheck(ctx, 5*time.Second); err != nil {
		return err
	}

	blobs, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	presigner, _ := blobs.(storage.Presigner)

	exec := runner.Exec{Logger: logger}
	engine, err := ocr.NewEngine(ctx, cfg.OCR, exec, logger)
	if err != nil {
		return err
	}
	if c, ok := engine.(io.Closer); ok {
		defer c.Close()
	}

	normalizer := document.NewNormalizer(document.Config{
		Pdftoppm:      cfg.OCR.Pdftoppm,
		MaxBytes:      cfg.OCR.MaxBytes,
		MaxPages:      cfg.OCR.MaxPages,
		MaxPixels:     cfg.OCR.MaxPixels,
		RenderTimeout: cfg.OCR.RenderTimeout,
	}, exec, logger)
	defaults := entity.ProcessingOptions{DPI: cfg.OCR.DPI, Languages: cfg.OCR.Languages, GPU: cfg.OCR.GPU}

	host, _ := os.Hostname()
	if host == "" {
		host = "searchpdfd"
	}
	processor := core.NewProcessor(logger, store.Jobs, blobs,
		normalizer,
		ocr.NewAdapter(engine, cfg.OCR.RecognizeTimeout, logger),
		overlay.NewCompositor(overlay.Options{MinConfidence: cfg.Worker.MinConfidence}, logger),
		core.Config{
			LeaseTTL:          cfg.Worker.LeaseTTL,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
			PageConcurrency:   cfg.Worker.PageConcurrency,
			Defaults:          defaults,
			WorkerID:          host,
		})

	// bind before any worker starts so a bad address leaves nothing running
	httpLis, grpcLis, err := listen(cfg.Server)
	if err != nil {
		return err
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.JobTimeout),
		async.WithInstanceID(host),
	)
	sweeper := async.NewSweeper(store.Jobs, queue, cfg.Worker.SweepInterval, logger)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	jobs := ingest.NewService(logger, store.Jobs, blobs, queue, normalizer, ingest.Config{
		MaxBytes: cfg.Server.MaxUploadBytes,
		Defaults: defaults,
	})
	handler := server.NewHandler(jobs, export.NewService(store.Jobs, logger), presigner, store, server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		PresignTTL:     cfg.Storage.PresignTTL,
	}, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("searchpdfd listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var health *server.HealthServer
	if grpcLis != nil {
		health = server.NewHealthServer(logger)
		go func() {
			if err := health.Serve(grpcLis); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("listener failed", "error", runErr)
	}

	if health != nil {
		health.SetServing(false)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	stopSweep()
	<-sweepDone
	// in-flight jobs finish or their leases lapse and the next sweep fails them
	queue.Shutdown(shutdownCtx)
	if health != nil {
		health.Stop()
	}
	return runErr
}

// listen binds the HTTP address and, when configured, the gRPC health
// address. On failure nothing stays bound.
func listen(cfg common.ServerConfig) (httpLis, grpcLis net.Listener, err error) {
	httpLis, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, nil, err
	}
	if cfg.GRPCAddr == "" {
		return httpLis, nil, nil
	}
	grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return nil, nil, err
	}
	return httpLis, grpcLis, nil
}
