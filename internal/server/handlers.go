package server

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/export"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

// JobService is the ingestion boundary the handlers call.
type JobService interface {
	Submit(ctx context.Context, req ingest.SubmitRequest) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (entity.StatusView, error)
	Retrieve(ctx context.Context, id uuid.UUID) (ingest.Output, error)
	OutputRef(ctx context.Context, id uuid.UUID) (*entity.Job, string, error)
	List(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error)
	Stats(ctx context.Context) (entity.JobStats, error)
}

// Reporter renders the job report workbook.
type Reporter interface {
	ExportJobsXLSX(ctx context.Context, w export.Window) ([]byte, error)
}

type Options struct {
	MaxUploadBytes int64
	PresignTTL     time.Duration
}

// Handler serves the HTTP boundary.
type Handler struct {
	svc        JobService
	reports    Reporter
	presigner  storage.Presigner // nil when the store cannot presign
	db         DBPinger
	maxUpload  int64
	presignTTL time.Duration
	logger     *slog.Logger
}

func NewHandler(svc JobService, reports Reporter, presigner storage.Presigner, db DBPinger, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	return &Handler{
		svc:        svc,
		reports:    reports,
		presigner:  presigner,
		db:         db,
		maxUpload:  opts.MaxUploadBytes,
		presignTTL: opts.PresignTTL,
		logger:     logger,
	}
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerWith(r.Context(), h.logger)
	id, err := jobID(r)
	if err != nil {
		writeError(w, log, err)
		return
	}
	view, err := h.svc.Status(r.Context(), id)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DownloadJob handles GET /v1/jobs/{id}/download. With ?redirect=1 and a
// presigning store the client is sent to a time-limited URL instead.
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := common.LoggerWith(ctx, h.logger)
	id, err := jobID(r)
	if err != nil {
		writeError(w, log, err)
		return
	}

	if h.presigner != nil && r.URL.Query().Get("redirect") == "1" {
		_, key, err := h.svc.OutputRef(ctx, id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		url, err := h.presigner.PresignGet(ctx, key, h.presignTTL)
		if err != nil {
			writeError(w, log, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	out, err := h.svc.Retrieve(ctx, id)
	if err != nil {
		writeError(w, log, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		log.Warn("download interrupted", "job_id", id, "error", err)
	}
}

type jobSummary struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	State       string     `json:"state"`
	ErrorKind   *string    `json:"error_kind,omitempty"`
	PageCount   int        `json:"page_count,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobs handles GET /v1/jobs?status=&limit=
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerWith(r.Context(), h.logger)
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, log, common.NewAppError("BAD_REQUEST", "limit must be within 1..1000", common.ErrInvalidInput))
			return
		}
		limit = n
	}
	var status constants.JobStatus
	if v := q.Get("status"); v != "" {
		s, ok := constants.ParseJobStatus(v)
		if !ok {
			writeError(w, log, common.NewAppError("BAD_REQUEST", "unknown status "+v, common.ErrInvalidInput))
			return
		}
		status = s
	}

	jobs, err := h.svc.List(r.Context(), status, limit)
	if err != nil {
		writeError(w, log, err)
		return
	}
	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobSummary{
			ID:          j.ID.String(),
			Filename:    j.Filename,
			State:       string(j.Status),
			ErrorKind:   j.ErrorKind,
			PageCount:   j.PageCount,
			SubmittedAt: j.SubmittedAt,
			CompletedAt: j.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, common.LoggerWith(r.Context(), h.logger), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":        s.Total,
		"queued":       s.Queued,
		"processing":   s.Processing,
		"done":         s.Done,
		"failed":       s.Failed,
		"success_rate": s.SuccessRate(),
	})
}

// attachment builds a Content-Disposition value with name quoted, or
// RFC 2231 encoded when it is not plain ASCII.
func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
