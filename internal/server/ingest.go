package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
)

// SubmitJobResponse is returned by POST /v1/jobs.
type SubmitJobResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	StatusURL   string    `json:"status_url"`
	DownloadURL string    `json:"download_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmitJob handles POST /v1/jobs (multipart field "file").
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := common.LoggerWith(ctx, h.logger)

	if h.maxUpload > 0 {
		// multipart framing overhead on top of the file itself
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, log, common.KindErrorf(common.KindDocumentTooLarge, "upload exceeds %d bytes", h.maxUpload))
			return
		}
		writeError(w, log, common.NewAppError("BAD_REQUEST", "expected multipart form with a file field", common.ErrInvalidInput))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, log, common.NewAppError("BAD_REQUEST", "file field is required", common.ErrInvalidInput))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, log, fmt.Errorf("read upload: %w", err))
		return
	}

	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, log, err)
		return
	}

	id, err := h.svc.Submit(ctx, ingest.SubmitRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Options:     opts,
		RequestID:   common.RequestIDFromContext(ctx),
	})
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitJobResponse{
		ID:          id.String(),
		Status:      "QUEUED",
		StatusURL:   "/v1/jobs/" + id.String(),
		DownloadURL: "/v1/jobs/" + id.String() + "/download",
		SubmittedAt: time.Now().UTC(),
	})
}

func parseOptions(r *http.Request) (entity.ProcessingOptions, error) {
	var opts entity.ProcessingOptions
	if v := strings.TrimSpace(r.FormValue("dpi")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, common.NewAppError("BAD_REQUEST", "dpi must be an integer", common.ErrInvalidInput)
		}
		opts.DPI = n
	}
	if v := strings.TrimSpace(r.FormValue("languages")); v != "" {
		opts.Languages = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(r.FormValue("gpu")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, common.NewAppError("BAD_REQUEST", "gpu must be a boolean", common.ErrInvalidInput)
		}
		opts.GPU = b
	}
	return opts, nil
}

func jobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		// an id that cannot exist is simply not found
		return uuid.Nil, common.KindErrorf(common.KindJobNotFound, "id %q", mux.Vars(r)["id"])
	}
	return id, nil
}
