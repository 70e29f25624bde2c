package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/async"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

// ErrUnsupportedType accompanies InvalidDocument when the artifact is not
// one of the accepted formats at all.
var ErrUnsupportedType = errors.New("unsupported document type")

// DocumentChecker performs the cheap structural checks done before a job
// exists. document.Normalizer implements it.
type DocumentChecker interface {
	CheckSize(data []byte) error
	CheckPages(data []byte) (int, error)
}

type SubmitRequest struct {
	Filename    string
	ContentType string
	Data        []byte
	Options     entity.ProcessingOptions
	RequestID   string
}

// Output is a finished searchable PDF.
type Output struct {
	JobID    uuid.UUID
	Key      string
	Filename string
	Data     []byte
}

type Config struct {
	MaxBytes    int64
	AllowedExts map[string]struct{}
	Defaults    entity.ProcessingOptions
}

// Service implements submission, status and retrieval.
type Service struct {
	jobs    repository.JobRepository
	blobs   storage.BlobStore
	queue   async.Queue
	checker DocumentChecker
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(logger *slog.Logger, jobs repository.JobRepository, blobs storage.BlobStore, queue async.Queue, checker DocumentChecker, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = constants.DefaultAllowedExtensions
	}
	return &Service{jobs: jobs, blobs: blobs, queue: queue, checker: checker, cfg: cfg, now: time.Now, logger: logger}
}

// Submit validates the artifact, stores it and records a QUEUED job.
// Rejected artifacts never produce a job. Processing is not awaited.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	log := common.LoggerWith(ctx, s.logger).With("filename", req.Filename, "bytes", len(req.Data))

	docType, err := s.classify(req)
	if err != nil {
		log.Warn("submission rejected", "error", err)
		return uuid.Nil, err
	}
	opts := req.Options.WithDefaults(s.cfg.Defaults)
	if err := validateOptions(opts); err != nil {
		log.Warn("submission rejected", "error", err)
		return uuid.Nil, err
	}

	id := uuid.New()
	ext := constants.ExtOf(req.Filename)
	key := storage.InputKey(id, ext)
	contentType := req.ContentType
	if _, ok := constants.DocTypeFromMIME(contentType); !ok {
		contentType = constants.MIMEForExt(ext)
	}
	if err := s.blobs.Put(ctx, key, req.Data, contentType); err != nil {
		log.Error("failed to store input", "error", err)
		return uuid.Nil, fmt.Errorf("store input: %w", err)
	}

	sum := sha256.Sum256(req.Data)
	job := &entity.Job{
		ID:          id,
		Status:      constants.JobStatusQueued,
		Filename:    filepath.Base(req.Filename),
		DocType:     docType,
		ContentType: contentType,
		SizeBytes:   int64(len(req.Data)),
		ContentHash: hex.EncodeToString(sum[:]),
		InputKey:    key,
		Options:     opts,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.jobs.Insert(ctx, job); err != nil {
		log.Error("failed to record job", "error", err)
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			log.Warn("failed to remove orphaned input", "key", key, "error", derr)
		}
		return uuid.Nil, fmt.Errorf("record job: %w", err)
	}

	err = s.queue.Enqueue(ctx, async.Job{JobID: id, SubmittedAt: job.SubmittedAt, RequestID: req.RequestID})
	if err != nil && !errors.Is(err, async.ErrAlreadyQueued) {
		// the sweeper picks it up from the registry
		log.Warn("job not queued", "job_id", id, "error", err)
	}
	log.Info("job submitted", "job_id", id, "doc_type", docType, "dpi", opts.DPI, "languages", opts.Languages)
	return id, nil
}

// classify checks size, name, declared type and magic bytes agree.
func (s *Service) classify(req SubmitRequest) (constants.DocType, error) {
	if len(req.Data) == 0 {
		return "", common.KindErrorf(common.KindInvalidDocument, "empty upload")
	}
	if s.cfg.MaxBytes > 0 && int64(len(req.Data)) > s.cfg.MaxBytes {
		return "", common.KindErrorf(common.KindDocumentTooLarge, "%d bytes exceeds the %d byte limit", len(req.Data), s.cfg.MaxBytes)
	}

	ext := constants.ExtOf(req.Filename)
	if _, ok := s.cfg.AllowedExts[ext]; !ok {
		return "", common.NewKindError(common.KindInvalidDocument, fmt.Sprintf("extension %q not accepted", ext), ErrUnsupportedType)
	}
	byExt, ok := constants.MapExtToDocType(ext)
	if !ok {
		return "", common.NewKindError(common.KindInvalidDocument, fmt.Sprintf("extension %q not accepted", ext), ErrUnsupportedType)
	}
	if declared, ok := constants.DocTypeFromMIME(req.ContentType); ok && declared != byExt {
		return "", common.NewKindError(common.KindInvalidDocument,
			fmt.Sprintf("content type %q does not match extension %q", req.ContentType, ext), ErrUnsupportedType)
	}
	sniffed, ok := constants.SniffDocType(req.Data)
	if !ok {
		return "", common.KindErrorf(common.KindInvalidDocument, "content is neither an image nor a PDF")
	}
	if sniffed != byExt {
		return "", common.KindErrorf(common.KindInvalidDocument, "content is %s but the name says %s", sniffed, byExt)
	}

	if s.checker != nil {
		if err := s.checker.CheckSize(req.Data); err != nil {
			return "", err
		}
		if byExt == constants.DocTypePDF {
			if _, err := s.checker.CheckPages(req.Data); err != nil {
				return "", err
			}
		}
	}
	return byExt, nil
}

func validateOptions(o entity.ProcessingOptions) error {
	v := common.NewValidator().
		Field("dpi", o.DPI, common.Between(50, 1200)).
		Field("languages", o.Languages, common.NonEmptyList)
	for _, l := range o.Languages {
		v.Field("languages", l, common.MaxLength(16))
	}
	if v.HasErrors() {
		return common.NewAppError("INVALID_OPTIONS", v.ErrorMessage(), common.ErrInvalidInput)
	}
	return nil
}

// Status reports the job's current state.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (entity.StatusView, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return entity.StatusView{}, err
	}
	return entity.NewStatusView(job), nil
}

// OutputRef returns the content store key of a finished job's output after
// checking it still exists.
func (s *Service) OutputRef(ctx context.Context, id uuid.UUID) (*entity.Job, string, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job.Status != constants.JobStatusDone || job.OutputKey == nil {
		return job, "", common.KindErrorf(common.KindOutputNotReady, "job %s is %s", id, job.Status)
	}
	ok, err := s.blobs.Exists(ctx, *job.OutputKey)
	if err != nil {
		return job, "", fmt.Errorf("check output: %w", err)
	}
	if !ok {
		return job, "", common.KindErrorf(common.KindOutputMissing, "output of job %s is gone", id)
	}
	return job, *job.OutputKey, nil
}

// Retrieve returns the searchable PDF of a DONE job.
func (s *Service) Retrieve(ctx context.Context, id uuid.UUID) (Output, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Output{}, err
	}
	if job.Status != constants.JobStatusDone || job.OutputKey == nil {
		return Output{}, common.KindErrorf(common.KindOutputNotReady, "job %s is %s", id, job.Status)
	}
	data, err := s.blobs.Get(ctx, *job.OutputKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			s.logger.Error("output missing for finished job", "job_id", id, "key", *job.OutputKey)
			return Output{}, common.NewKindError(common.KindOutputMissing, "output of job "+id.String(), err)
		}
		return Output{}, fmt.Errorf("load output: %w", err)
	}
	return Output{JobID: id, Key: *job.OutputKey, Filename: DownloadName(job.Filename), Data: data}, nil
}

// List returns recent jobs, newest first, optionally filtered by state.
func (s *Service) List(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	if status == "" {
		return s.jobs.List(ctx, limit)
	}
	return s.jobs.ListByStatus(ctx, status, limit)
}

func (s *Service) Stats(ctx context.Context) (entity.JobStats, error) {
	return s.jobs.Stats(ctx)
}

// DownloadName is the attachment name offered for a job's output.
func DownloadName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	return "searchable_" + base + ".pdf"
}
