// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes eatsync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/eatsync/internal/apperr"
	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/syncer"
	"github.com/starford/eatsync/internal/transfer"
)

const archiveFormatURI = "eatsync://archive-format"

// Syncer is the coordinator surface exposed as tools.
type Syncer interface {
	ExportData(ctx context.Context) (models.ExportSummary, error)
	StartLanServer(ctx context.Context) (transfer.Address, error)
	StopLanServer() error
	ImportData(ctx context.Context, peer string) (models.ImportSummary, error)
	Status() syncer.Status
}

// Server wraps the MCP server with eatsync tools.
type Server struct {
	mcp  *server.MCPServer
	sync Syncer
}

// New creates a new MCP server with all eatsync tools registered.
func New(sync Syncer) *Server {
	s := &Server{sync: sync}

	s.mcp = server.NewMCPServer(
		"eatsync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("export_data",
		mcp.WithDescription("Write a fresh backup archive of all articles, health records and events. "+
			"Returns counts, size and SHA-256 checksum."),
	), s.exportData)

	s.mcp.AddTool(mcp.NewTool("start_lan_server",
		mcp.WithDescription("Export and serve the backup archive on the local network. "+
			"Returns the host:port another device must enter to import it."),
	), s.startLanServer)

	s.mcp.AddTool(mcp.NewTool("stop_lan_server",
		mcp.WithDescription("Stop the LAN server and delete the served archive."),
	), s.stopLanServer)

	s.mcp.AddTool(mcp.NewTool("import_data",
		mcp.WithDescription("Download a peer's backup and REPLACE all local data with it. "+
			"This deletes every local article, health record and event first. "+
			"Read the archive contract via get_archive_format or the eatsync://archive-format resource."),
		mcp.WithString("peer", mcp.Required(), mcp.Description("Peer address as host or host:port (e.g. 192.168.1.5:8080)")),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true to acknowledge that local data is replaced")),
	), s.importData)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether a sync is running, the LAN server address and the last error."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("get_archive_format",
		mcp.WithDescription("Returns the backup archive format contract."),
	), s.getArchiveFormat)

	// Resource: archive format contract.
	s.mcp.AddResource(
		mcp.NewResource(archiveFormatURI, "Archive Format Contract",
			mcp.WithResourceDescription("Layout and rules of the eatsync backup archive."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readArchiveFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func syncError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", apperr.KindOf(err), err.Error()))
}

func (s *Server) exportData(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.sync.ExportData(ctx)
	if err != nil {
		return syncError(err), nil
	}
	return jsonResult(sum), nil
}

func (s *Server) startLanServer(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := s.sync.StartLanServer(ctx)
	if err != nil {
		return syncError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("serving at %s", addr)), nil
}

func (s *Server) stopLanServer(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.sync.StopLanServer(); err != nil {
		return syncError(err), nil
	}
	return mcp.NewToolResultText("stopped"), nil
}

func (s *Server) importData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	peer, err := req.RequireString("peer")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	confirm, err := req.RequireBool("confirm")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !confirm {
		return mcp.NewToolResultError("import replaces all local data; call again with confirm=true"), nil
	}

	sum, err := s.sync.ImportData(ctx, peer)
	if err != nil {
		return syncError(err), nil
	}
	return jsonResult(sum), nil
}

func (s *Server) syncStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sync.Status()), nil
}

func (s *Server) getArchiveFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArchiveFormatContract), nil
}

func (s *Server) readArchiveFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      archiveFormatURI,
			MIMEType: "text/markdown",
			Text:     ArchiveFormatContract,
		},
	}, nil
}
