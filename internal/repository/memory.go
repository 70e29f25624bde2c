package repository

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
)

// MemoryJobRepository keeps jobs in a map guarded by a RWMutex. Suitable for
// single-process deployments and tests.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entity.Job
	now  func() time.Time
	log  *slog.Logger
}

func NewMemoryJobRepository(log *slog.Logger) *MemoryJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryJobRepository{jobs: make(map[uuid.UUID]*entity.Job), now: time.Now, log: log}
}

func (r *MemoryJobRepository) Insert(_ context.Context, job *entity.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return common.NewAppError("REGISTRY_ERROR", "duplicate job id "+job.ID.String(), common.ErrInvalidInput)
	}
	r.jobs[job.ID] = job.Clone()
	r.log.Info("job inserted", "job_id", job.ID, "doc_type", job.DocType)
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	return j.Clone(), nil
}

func (r *MemoryJobRepository) Claim(_ context.Context, id uuid.UUID, workerID string, lease time.Duration) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	if j.Status != constants.JobStatusQueued {
		return nil, ErrAlreadyClaimed
	}
	now := r.now()
	exp := now.Add(lease)
	j.Status = constants.JobStatusProcessing
	j.ClaimedBy = &workerID
	j.LeaseExpiresAt = &exp
	j.StartedAt = &now
	j.Attempts++
	return j.Clone(), nil
}

// owned returns the job if workerID holds its PROCESSING lease.
func (r *MemoryJobRepository) owned(id uuid.UUID, workerID string) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	if j.Status != constants.JobStatusProcessing || j.ClaimedBy == nil || *j.ClaimedBy != workerID {
		return nil, ErrLeaseLost
	}
	return j, nil
}

func (r *MemoryJobRepository) Heartbeat(_ context.Context, id uuid.UUID, workerID string, lease time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	exp := r.now().Add(lease)
	j.LeaseExpiresAt = &exp
	return nil
}

func (r *MemoryJobRepository) Complete(_ context.Context, id uuid.UUID, workerID, outputKey string, pageCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	now := r.now()
	j.Status = constants.JobStatusDone
	j.OutputKey = &outputKey
	j.PageCount = pageCount
	j.CompletedAt = &now
	j.LeaseExpiresAt = nil
	r.log.Info("job done", "job_id", id, "pages", pageCount)
	return nil
}

func (r *MemoryJobRepository) Fail(_ context.Context, id uuid.UUID, workerID string, kind common.ErrorKind, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, err := r.owned(id, workerID)
	if err != nil {
		return err
	}
	r.fail(j, kind, detail)
	return nil
}

func (r *MemoryJobRepository) fail(j *entity.Job, kind common.ErrorKind, detail string) {
	now := r.now()
	k := string(kind)
	d := truncateDetail(detail)
	j.Status = constants.JobStatusFailed
	j.ErrorKind = &k
	j.ErrorDetail = &d
	j.CompletedAt = &now
	j.LeaseExpiresAt = nil
	r.log.Warn("job failed", "job_id", j.ID, "kind", k, "error", d)
}

func (r *MemoryJobRepository) ExpireLeases(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []uuid.UUID
	for id, j := range r.jobs {
		if j.Status == constants.JobStatusProcessing && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now) {
			r.fail(j, common.KindPipelineFailure, LeaseExpiredDetail)
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (r *MemoryJobRepository) ListByStatus(_ context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Job
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	// oldest first so queued work drains in submission order
	sort.Slice(out, func(a, b int) bool { return out[a].SubmittedAt.Before(out[b].SubmittedAt) })
	return capList(out, limit), nil
}

func (r *MemoryJobRepository) List(_ context.Context, limit int) ([]*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SubmittedAt.After(out[b].SubmittedAt) })
	return capList(out, limit), nil
}

func (r *MemoryJobRepository) Stats(_ context.Context) (entity.JobStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s entity.JobStats
	for _, j := range r.jobs {
		addStat(&s, j.Status, 1)
	}
	return s, nil
}

func addStat(s *entity.JobStats, status constants.JobStatus, n int) {
	s.Total += n
	switch status {
	case constants.JobStatusQueued:
		s.Queued += n
	case constants.JobStatusProcessing:
		s.Processing += n
	case constants.JobStatusDone:
		s.Done += n
	case constants.JobStatusFailed:
		s.Failed += n
	}
}

func capList(jobs []*entity.Job, limit int) []*entity.Job {
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}
