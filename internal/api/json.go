package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/eatsync/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string      `json:"error" validate:"required"`
	Code  apperr.Kind `json:"code,omitempty" example:"busy"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps a sync error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindBusy:
		return http.StatusConflict
	case apperr.KindPortUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindConnectionFailed, apperr.KindRemoteError:
		return http.StatusBadGateway
	case apperr.KindCorruptArchive, apperr.KindNoManifestFound:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeSyncError writes err with the status for its kind.
func writeSyncError(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()), slog.String("code", string(kind)))
	} else {
		slog.Warn(op+" failed", slog.String("error", err.Error()), slog.String("code", string(kind)))
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Code: kind})
}
