package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/syncer"
)

// ImportRequest is the request body for importing from a peer.
type ImportRequest struct {
	Peer string `json:"peer" example:"192.168.1.5:8080" validate:"required"`
}

// Validate validates the import request.
func (r *ImportRequest) Validate() error {
	r.Peer = strings.TrimSpace(r.Peer)
	return validation.ValidateStruct(r,
		validation.Field(&r.Peer, validation.Required, validation.Length(1, 255)),
	)
}

// ExportSummary is the export response type (aliased from the domain layer).
type ExportSummary = models.ExportSummary

// ImportSummary is the import response type (aliased from the domain layer).
type ImportSummary = models.ImportSummary

// SyncStatus is the status response type (aliased from the domain layer).
type SyncStatus = syncer.Status

// ServerResponse describes a running LAN server.
type ServerResponse struct {
	Address string `json:"address" example:"192.168.1.5:8080" validate:"required"`
	Host    string `json:"host" example:"192.168.1.5" validate:"required"`
	Port    int    `json:"port" example:"8080" validate:"required"`
}
