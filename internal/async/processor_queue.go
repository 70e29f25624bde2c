package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
)

type ProcessorQueue struct {
	proc     JobProcessor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	instance string

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	pending map[uuid.UUID]struct{}
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithInstanceID prefixes worker ids, which become lease owners.
func WithInstanceID(id string) Option {
	return func(q *ProcessorQueue) {
		if id != "" {
			q.instance = id
		}
	}
}

func NewProcessorQueue(proc JobProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:     proc,
		logger:   logger,
		workers:  4,
		timeout:  10 * time.Minute,
		instance: uuid.NewString()[:8],
		ch:       make(chan Job, 256),
		pending:  make(map[uuid.UUID]struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID string) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.mu.Lock()
					delete(q.pending, job.JobID)
					q.mu.Unlock()

					ctx := common.WithWorkerID(context.Background(), workerID)
					if job.RequestID != "" {
						ctx = common.WithRequestID(ctx, job.RequestID)
					}
					ctx, cancel := context.WithTimeout(ctx, q.timeout)
					err := q.proc.ProcessJob(ctx, job.JobID)
					cancel()

					switch {
					case err == nil:
						q.logger.Info("processed job successfully", "worker_id", workerID, "job_id", job.JobID,
							"queued_ms", time.Since(job.SubmittedAt).Milliseconds())
					case errors.Is(err, repository.ErrAlreadyClaimed):
						q.logger.Debug("job already taken", "worker_id", workerID, "job_id", job.JobID)
					default:
						q.logger.Error("processing failed", "worker_id", workerID, "job_id", job.JobID, "error", err)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(fmt.Sprintf("%s-%d", q.instance, i+1))
		}
	})
}

// Enqueue never blocks. A job already waiting in the channel is not added
// twice and returns ErrAlreadyQueued; a full channel returns ErrQueueFull.
func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return ErrQueueClosed
	}
	if _, ok := q.pending[job.JobID]; ok {
		return ErrAlreadyQueued
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.pending[job.JobID] = struct{}{}
		q.logger.Debug("queued job for processing", "job_id", job.JobID)
		return nil
	default:
		q.logger.Warn("queue full, leaving job for the sweeper", "job_id", job.JobID)
		return ErrQueueFull
	}
}

// Len is the number of jobs waiting for a worker.
func (q *ProcessorQueue) Len() int {
	return len(q.ch)
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
