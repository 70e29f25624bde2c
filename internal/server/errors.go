package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error to its HTTP status and public kind.
func statusFor(err error) (int, string) {
	if errors.Is(err, common.ErrInvalidInput) {
		return http.StatusBadRequest, "InvalidRequest"
	}
	kind := common.KindOf(err)
	switch kind {
	case common.KindInvalidDocument:
		if errors.Is(err, ingest.ErrUnsupportedType) {
			return http.StatusUnsupportedMediaType, string(kind)
		}
		return http.StatusBadRequest, string(kind)
	case common.KindDocumentTooLarge:
		return http.StatusRequestEntityTooLarge, string(kind)
	case common.KindJobNotFound:
		return http.StatusNotFound, string(kind)
	case common.KindOutputNotReady:
		return http.StatusConflict, string(kind)
	case common.KindOutputMissing:
		return http.StatusGone, string(kind)
	}
	return http.StatusInternalServerError, string(kind)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code, kind := statusFor(err)
	msg := err.Error()
	if code >= 500 {
		logger.Error("request failed", "kind", kind, "error", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
