package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/ocr"
	"github.com/joseph-ayodele/searchable-pdf/internal/overlay"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

// Normalizer rasterizes a submitted artifact into ordered pages.
type Normalizer interface {
	Normalize(ctx context.Context, src document.Source, opts entity.ProcessingOptions) ([]document.Page, error)
}

// Recognizer returns the text fragments found on one page.
type Recognizer interface {
	Recognize(ctx context.Context, page document.Page, opts entity.ProcessingOptions) ([]ocr.Fragment, error)
}

// Composer renders recognized pages into the output document.
type Composer interface {
	Compose(pages []overlay.PageInput) ([]byte, error)
}

type Config struct {
	LeaseTTL          time.Duration
	HeartbeatInterval time.Duration
	PageConcurrency   int
	Defaults          entity.ProcessingOptions
	// WorkerID identifies this process when the context carries none.
	WorkerID string
}

// Processor runs a job through normalize, recognize and compose, and
// records the outcome in the registry.
type Processor struct {
	logger     *slog.Logger
	jobs       repository.JobRepository
	blobs      storage.BlobStore
	normalizer Normalizer
	recognizer Recognizer
	composer   Composer
	cfg        Config
}

func NewProcessor(
	logger *slog.Logger,
	jobs repository.JobRepository,
	blobs storage.BlobStore,
	normalizer Normalizer,
	recognizer Recognizer,
	composer Composer,
	cfg Config,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 1
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	return &Processor{
		logger:     logger,
		jobs:       jobs,
		blobs:      blobs,
		normalizer: normalizer,
		recognizer: recognizer,
		composer:   composer,
		cfg:        cfg,
	}
}

// ProcessJob claims the job and drives it to DONE or FAILED. A job someone
// else already claimed is left alone and repository.ErrAlreadyClaimed is
// returned. If the lease is lost mid-run the result is discarded and
// repository.ErrLeaseLost is returned.
func (p *Processor) ProcessJob(ctx context.Context, id uuid.UUID) error {
	workerID := common.WorkerIDFromContext(ctx)
	if workerID == "" {
		workerID = p.cfg.WorkerID
	}
	log := common.LoggerWith(ctx, p.logger).With("job_id", id, "worker_id", workerID)

	job, err := p.jobs.Claim(ctx, id, workerID, p.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyClaimed) {
			log.Info("processor.claim.lost")
		} else {
			log.Error("processor.claim.failed", "error", err)
		}
		return err
	}
	log.Info("processing job", "filename", job.Filename, "doc_type", job.DocType, "attempt", job.Attempts)
	start := time.Now()

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := p.heartbeat(jobCtx, cancel, id, workerID, log)

	outputKey, pages, runErr := p.run(jobCtx, job)
	stop()

	if cause := context.Cause(jobCtx); errors.Is(cause, repository.ErrLeaseLost) {
		log.Warn("processor.lease.lost", "duration_ms", time.Since(start).Milliseconds())
		if outputKey != "" {
			p.discard(outputKey, log)
		}
		return cause
	}

	// the job context may be dead (timeout); terminal writes use their own
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer finishCancel()

	if runErr != nil {
		kind := common.KindOf(runErr)
		if err := p.jobs.Fail(finishCtx, id, workerID, kind, runErr.Error()); err != nil {
			log.Error("processor.fail.record", "error", err)
			return errors.Join(runErr, err)
		}
		log.Error("job failed", "kind", kind, "error", runErr, "duration_ms", time.Since(start).Milliseconds())
		return runErr
	}

	if err := p.jobs.Complete(finishCtx, id, workerID, outputKey, pages); err != nil {
		log.Error("processor.complete.record", "error", err)
		if errors.Is(err, repository.ErrLeaseLost) {
			p.discard(outputKey, log)
		}
		return err
	}
	log.Info("job done", "pages", pages, "output", outputKey, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) run(ctx context.Context, job *entity.Job) (string, int, error) {
	data, err := p.blobs.Get(ctx, job.InputKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return "", 0, common.NewKindError(common.KindPipelineFailure, "input artifact missing", err)
		}
		return "", 0, fmt.Errorf("load input: %w", err)
	}

	out, pages, err := p.Convert(ctx, data, job.DocType, job.Options)
	if err != nil {
		return "", 0, err
	}

	key := storage.OutputKey(job.ID)
	if err := p.blobs.Put(ctx, key, out, "application/pdf"); err != nil {
		return "", 0, fmt.Errorf("store output: %w", err)
	}
	return key, pages, nil
}

// Convert runs the three stages over one document without touching the
// registry or the content store.
func (p *Processor) Convert(ctx context.Context, data []byte, docType constants.DocType, opts entity.ProcessingOptions) ([]byte, int, error) {
	opts = opts.WithDefaults(p.cfg.Defaults)

	pages, err := p.normalizer.Normalize(ctx, document.Source{Data: data, Type: docType}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("normalize: %w", err)
	}

	frags, err := p.recognizeAll(ctx, pages, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("recognize: %w", err)
	}

	inputs := make([]overlay.PageInput, len(pages))
	for i, pg := range pages {
		inputs[i] = overlay.PageInput{Page: pg, Fragments: frags[i]}
	}
	out, err := p.composer.Compose(inputs)
	if err != nil {
		return nil, 0, fmt.Errorf("compose: %w", err)
	}
	return out, len(pages), nil
}

// recognizeAll keeps results indexed by page regardless of completion order.
func (p *Processor) recognizeAll(ctx context.Context, pages []document.Page, opts entity.ProcessingOptions) ([][]ocr.Fragment, error) {
	results := make([][]ocr.Fragment, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.PageConcurrency)
	for i := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := p.recognizer.Recognize(gctx, pages[i], opts)
			if err != nil {
				return err
			}
			results[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// heartbeat extends the lease until stopped. Losing the lease cancels ctx
// with repository.ErrLeaseLost as the cause.
func (p *Processor) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, id uuid.UUID, workerID string, log *slog.Logger) func() {
	if p.cfg.HeartbeatInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(p.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				err := p.jobs.Heartbeat(ctx, id, workerID, p.cfg.LeaseTTL)
				switch {
				case err == nil:
					log.Debug("lease extended")
				case errors.Is(err, repository.ErrLeaseLost):
					cancel(err)
					return
				default:
					log.Warn("heartbeat failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (p *Processor) discard(key string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.blobs.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		log.Warn("failed to remove orphaned output", "key", key, "error", err)
	}
}
