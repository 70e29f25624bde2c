package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
)

var (
	// ErrAlreadyClaimed is returned to the loser of a claim race, or when the
	// job has left QUEUED.
	ErrAlreadyClaimed = errors.New("job already claimed")
	// ErrLeaseLost means the caller no longer owns the PROCESSING job.
	ErrLeaseLost = errors.New("job lease lost")
)

// LeaseExpiredDetail is recorded on jobs failed by ExpireLeases.
const LeaseExpiredDetail = "lease expired before the worker finished"

// JobRepository is the job registry. Claim, Heartbeat, Complete and Fail are
// compare-and-set transitions; readers never block on them.
type JobRepository interface {
	Insert(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Claim(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) (*entity.Job, error)
	Heartbeat(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) error
	Complete(ctx context.Context, id uuid.UUID, workerID, outputKey string, pageCount int) error
	Fail(ctx context.Context, id uuid.UUID, workerID string, kind common.ErrorKind, detail string) error
	ExpireLeases(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error)
	List(ctx context.Context, limit int) ([]*entity.Job, error)
	Stats(ctx context.Context) (entity.JobStats, error)
}

func jobNotFound(id uuid.UUID) error {
	return common.KindErrorf(common.KindJobNotFound, "id %s", id)
}

func validateNew(job *entity.Job) error {
	if job == nil || job.ID == uuid.Nil {
		return common.NewAppError("REGISTRY_ERROR", "job id is required", common.ErrInvalidInput)
	}
	if job.Status != constants.JobStatusQueued {
		return common.NewAppError("REGISTRY_ERROR", "new jobs must be QUEUED, got "+string(job.Status), common.ErrInvalidInput)
	}
	return nil
}

const maxDetailLen = 2000

func truncateDetail(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen] + "...(truncated)"
}
