package syncer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/eatsync/internal/apperr"
	"github.com/starford/eatsync/internal/archive"
	"github.com/starford/eatsync/internal/checksum"
	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/transfer"
)

// ExportData snapshots every collection into the sender archive and returns
// its summary. Photos that no longer exist on disk are left out.
func (c *Coordinator) ExportData(ctx context.Context) (models.ExportSummary, error) {
	release, err := c.acquire()
	if err != nil {
		return models.ExportSummary{}, err
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	opID := newOperationID()
	sum, err := c.export(ctx, opID)
	if err != nil {
		c.fail(opID, "export", err)
		return models.ExportSummary{}, err
	}
	return sum, nil
}

// StartLanServer stops any running server, re-exports so the archive is
// fresh, and serves it. The returned address is what the peer types in.
func (c *Coordinator) StartLanServer(ctx context.Context) (transfer.Address, error) {
	release, err := c.acquire()
	if err != nil {
		return transfer.Address{}, err
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	opID := newOperationID()
	c.server.Stop()

	if _, err := c.export(ctx, opID); err != nil {
		c.fail(opID, "start_server", err)
		return transfer.Address{}, err
	}

	addr, err := c.server.Start(c.port, c.maxAttempts)
	if err != nil {
		c.fail(opID, "start_server", err)
		return transfer.Address{}, err
	}
	c.emit(EventServerStarted, map[string]any{
		"operation_id": opID,
		"address":      addr.String(),
	})
	return addr, nil
}

// StopLanServer stops the server and removes the sender archive. Calling it
// when nothing is running only cleans up.
func (c *Coordinator) StopLanServer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, running := c.server.Address()
	c.server.Stop()

	if err := os.RemoveAll(c.backupDir()); err != nil {
		return apperr.New(apperr.KindInternal, "remove sender archive", err)
	}
	if running {
		c.emit(EventServerStopped, map[string]any{"address": addr.String()})
	}
	return nil
}

// export writes data.json and backup.zip into the sender cache. Callers hold mu.
func (c *Coordinator) export(ctx context.Context, opID string) (models.ExportSummary, error) {
	articles, err := c.store.ListArticles(ctx)
	if err != nil {
		return models.ExportSummary{}, apperr.Wrap(apperr.KindInternal, "read articles", err)
	}
	health, err := c.store.ListHealthRecords(ctx)
	if err != nil {
		return models.ExportSummary{}, apperr.Wrap(apperr.KindInternal, "read health records", err)
	}
	events, err := c.store.ListEvents(ctx)
	if err != nil {
		return models.ExportSummary{}, apperr.Wrap(apperr.KindInternal, "read events", err)
	}

	wire := make([]models.HealthRecord, len(health))
	for i, h := range health {
		wire[i] = h.ToWire()
	}
	m := models.NewManifest(articles, wire, events, c.now().UnixMilli())

	data, err := archive.Encode(m)
	if err != nil {
		return models.ExportSummary{}, apperr.Wrap(apperr.KindInternal, "encode manifest", err)
	}

	if err := os.MkdirAll(c.backupDir(), 0o755); err != nil {
		return models.ExportSummary{}, apperr.New(apperr.KindInternal, "create sender cache", err)
	}
	if err := os.WriteFile(filepath.Join(c.backupDir(), archive.ManifestName), data, 0o644); err != nil {
		return models.ExportSummary{}, apperr.New(apperr.KindInternal, "write manifest", err)
	}

	images, err := archive.Pack(c.archivePath(), data, m.PhotoPaths())
	if err != nil {
		return models.ExportSummary{}, apperr.Wrap(apperr.KindInternal, "pack archive", err)
	}
	digest, size, err := checksum.File(c.archivePath())
	if err != nil {
		return models.ExportSummary{}, apperr.New(apperr.KindInternal, "checksum archive", err)
	}

	sum := models.ExportSummary{
		ArchivePath:       c.archivePath(),
		SizeBytes:         size,
		Checksum:          digest,
		ArticleCount:      len(m.Articles),
		ImageCount:        images,
		HealthRecordCount: len(m.HealthRecords),
		EventCount:        len(m.Events),
	}
	c.logger.Info("syncer: export completed",
		slog.String("operation_id", opID),
		slog.String("archive", sum.ArchivePath),
		slog.Int64("size_bytes", sum.SizeBytes),
		slog.Int("articles", sum.ArticleCount),
		slog.Int("health_records", sum.HealthRecordCount),
		slog.Int("events", sum.EventCount),
		slog.Int("images", sum.ImageCount))
	c.emit(EventExportCompleted, map[string]any{
		"operation_id": opID,
		"summary":      sum,
	})
	return sum, nil
}
