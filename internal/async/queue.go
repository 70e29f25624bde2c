package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull means the job stays QUEUED in the registry for the sweeper.
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue is shutting down")

	// ErrAlreadyQueued means the job is already waiting for a worker.
	ErrAlreadyQueued = errors.New("job already queued")
)

// Job is a unit of queued work: the registry id plus submission metadata.
type Job struct {
	JobID       uuid.UUID
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// JobProcessor drives one job to a terminal state.
type JobProcessor interface {
	ProcessJob(ctx context.Context, id uuid.UUID) error
}
