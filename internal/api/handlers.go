package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/syncer"
	"github.com/starford/eatsync/internal/transfer"
)

// SyncService is the coordinator surface the API drives.
type SyncService interface {
	ExportData(ctx context.Context) (models.ExportSummary, error)
	StartLanServer(ctx context.Context) (transfer.Address, error)
	StopLanServer() error
	ImportData(ctx context.Context, peer string) (models.ImportSummary, error)
	Status() syncer.Status
}

var _ SyncService = (*syncer.Coordinator)(nil)

// Handler holds API route handlers.
type Handler struct {
	svc SyncService
}

// NewHandler creates a new Handler.
func NewHandler(svc SyncService) *Handler {
	return &Handler{svc: svc}
}

// Export handles POST /api/sync/export.
//
//	@Summary		Write a fresh backup archive
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ExportSummary
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ExportData(r.Context())
	if err != nil {
		writeSyncError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// StartServer handles POST /api/sync/server.
//
//	@Summary		Export and serve the archive on the LAN
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ServerResponse
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/server [post]
func (h *Handler) StartServer(w http.ResponseWriter, r *http.Request) {
	addr, err := h.svc.StartLanServer(r.Context())
	if err != nil {
		writeSyncError(w, "start server", err)
		return
	}
	writeJSON(w, http.StatusOK, ServerResponse{
		Address: addr.String(),
		Host:    addr.Host,
		Port:    addr.Port,
	})
}

// StopServer handles DELETE /api/sync/server.
//
//	@Summary		Stop the LAN server and delete the archive
//	@Tags			sync
//	@Success		204
//	@Security		BearerAuth
//	@Router			/sync/server [delete]
func (h *Handler) StopServer(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.StopLanServer(); err != nil {
		writeSyncError(w, "stop server", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/sync/import.
// All local records are replaced by the peer's.
//
//	@Summary		Replace local data with a peer's backup
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Peer address"
//	@Success		200		{object}	ImportSummary
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return
		}
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody("request body is required"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	sum, err := h.svc.ImportData(r.Context(), req.Peer)
	if err != nil {
		writeSyncError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Status handles GET /api/sync/status.
//
//	@Summary		Current sync status
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncStatus
//	@Security		BearerAuth
//	@Router			/sync/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}
