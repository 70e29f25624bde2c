package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// JobsReport handles GET /v1/reports/jobs.xlsx?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) JobsReport(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerWith(r.Context(), h.logger)
	if h.reports == nil {
		writeError(w, log, common.NewAppError("UNAVAILABLE", "reports are not configured", nil))
		return
	}

	var win export.Window
	for name, dst := range map[string]**time.Time{"from": &win.From, "to": &win.To} {
		v := strings.TrimSpace(r.URL.Query().Get(name))
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, log, common.NewAppError("BAD_REQUEST", name+" must be YYYY-MM-DD", common.ErrInvalidInput))
			return
		}
		*dst = &t
	}

	xlsx, err := h.reports.ExportJobsXLSX(r.Context(), win)
	if err != nil {
		log.Error("export.xlsx.failed", "error", err)
		writeError(w, log, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment("jobs.xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(len(xlsx)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xlsx)
}
