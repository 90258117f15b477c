package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/syncer"
	"github.com/starford/eatsync/internal/testutil"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func testServer(t *testing.T) *Server {
	t.Helper()

	db := testutil.TestDB(t)
	testutil.Seed(t, db,
		[]models.ArticleRecord{{Title: "Oats", Timestamp: 1}, {Title: "Eggs", Timestamp: 2}},
		[]models.HealthRecord{{Timestamp: 1, Kind: models.HealthWeight, Value1: 70}},
		nil)
	_, photos := testutil.TestPhotos(t)

	coord := syncer.New(db, photos,
		syncer.WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		syncer.WithServerPort(freePort(t), 10),
		syncer.WithBindHost("127.0.0.1"),
		syncer.WithHostAddr(func() string { return "127.0.0.1" }),
		syncer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = coord.StopLanServer() })

	return New(coord)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "export_data":
		result, err = srv.exportData(ctx, req)
	case "start_lan_server":
		result, err = srv.startLanServer(ctx, req)
	case "stop_lan_server":
		result, err = srv.stopLanServer(ctx, req)
	case "import_data":
		result, err = srv.importData(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	case "get_archive_format":
		result, err = srv.getArchiveFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestExportData(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "export_data", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("export failed: %s", resultText(r))
	}
	var sum models.ExportSummary
	if err := json.Unmarshal([]byte(resultText(r)), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.ArticleCount != 2 || sum.HealthRecordCount != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestStartStatusStop(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "start_lan_server", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("start failed: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), "serving at 127.0.0.1:") {
		t.Errorf("start result = %q", resultText(r))
	}

	r = callTool(t, srv, "sync_status", map[string]interface{}{})
	var st syncer.Status
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.Serving || st.LastEvent != syncer.EventServerStarted {
		t.Errorf("status = %+v", st)
	}

	r = callTool(t, srv, "stop_lan_server", map[string]interface{}{})
	if resultText(r) != "stopped" {
		t.Errorf("stop result = %q", resultText(r))
	}
}

func TestImportRequiresConfirm(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "import_data", map[string]interface{}{"peer": "127.0.0.1:1", "confirm": false})
	if !r.IsError {
		t.Fatal("expected error without confirmation")
	}
	r = callTool(t, srv, "import_data", map[string]interface{}{"confirm": true})
	if !r.IsError {
		t.Fatal("expected error without peer")
	}
}

func TestImportConnectionFailed(t *testing.T) {
	srv := testServer(t)

	peer := "127.0.0.1:" + strconv.Itoa(freePort(t))
	r := callTool(t, srv, "import_data", map[string]interface{}{"peer": peer, "confirm": true})
	if !r.IsError {
		t.Fatal("expected error for unreachable peer")
	}
	if !strings.HasPrefix(resultText(r), "connection_failed:") {
		t.Errorf("error = %q", resultText(r))
	}
}

func TestArchiveFormat(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_archive_format", map[string]interface{}{})
	if !strings.Contains(resultText(r), "data.json") {
		t.Error("contract does not describe data.json")
	}

	contents, err := srv.readArchiveFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != archiveFormatURI || tc.Text != ArchiveFormatContract {
		t.Errorf("resource = %+v", contents[0])
	}
}
