package async

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
)

// Sweeper fails jobs whose lease ran out and hands QUEUED jobs found in
// the registry back to the queue. Claim arbitrates any duplicates.
type Sweeper struct {
	jobs     repository.JobRepository
	queue    Queue
	interval time.Duration
	batch    int
	now      func() time.Time
	logger   *slog.Logger
}

func NewSweeper(jobs repository.JobRepository, queue Queue, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{jobs: jobs, queue: queue, interval: interval, batch: 100, now: time.Now, logger: logger}
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "interval", s.interval)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-t.C:
		}
	}
}

// SweepOnce returns how many leases expired and how many jobs were queued.
func (s *Sweeper) SweepOnce(ctx context.Context) (expired, queued int, err error) {
	ids, err := s.jobs.ExpireLeases(ctx, s.now())
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		s.logger.Warn("lease expired, job failed", "job_id", id)
	}

	waiting, err := s.jobs.ListByStatus(ctx, constants.JobStatusQueued, s.batch)
	if err != nil {
		return len(ids), 0, err
	}
	for _, j := range waiting {
		err := s.queue.Enqueue(ctx, Job{JobID: j.ID, SubmittedAt: j.SubmittedAt})
		if errors.Is(err, ErrAlreadyQueued) {
			continue
		}
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			break
		}
		if err != nil {
			return len(ids), queued, err
		}
		queued++
	}
	if len(ids) > 0 || queued > 0 {
		s.logger.Info("sweep complete", "expired", len(ids), "queued", queued)
	}
	return len(ids), queued, nil
}

// Drain sweeps every poll interval until each of ids has reached a terminal
// state. Jobs that did not fit the queue on submission are handed over as
// workers free up.
func (s *Sweeper) Drain(ctx context.Context, ids []uuid.UUID, poll time.Duration) error {
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	open := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		open[id] = struct{}{}
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if _, _, err := s.SweepOnce(ctx); err != nil {
			return err
		}
		for id := range open {
			j, err := s.jobs.Get(ctx, id)
			if err != nil {
				return err
			}
			if j.Status.IsTerminal() {
				delete(open, id)
			}
		}
		if len(open) == 0 {
			return nil
		}
		s.logger.Debug("waiting on jobs", "remaining", len(open))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
