package syncer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/eatsync/internal/apperr"
	"github.com/starford/eatsync/internal/archive"
	"github.com/starford/eatsync/internal/checksum"
	"github.com/starford/eatsync/internal/models"
)

// ImportData downloads the peer's archive and replaces every local
// collection with its contents. Local records are deleted before the new
// ones are inserted; a failure after that point leaves the store partially
// imported.
func (c *Coordinator) ImportData(ctx context.Context, peer string) (models.ImportSummary, error) {
	release, err := c.acquire()
	if err != nil {
		return models.ImportSummary{}, err
	}
	defer release()

	opID := newOperationID()
	c.emit(EventImportStarted, map[string]any{
		"operation_id": opID,
		"peer":         peer,
	})

	sum, err := c.importFrom(ctx, opID, peer)
	if err != nil {
		c.fail(opID, "import", err)
		return models.ImportSummary{}, err
	}
	c.emit(EventImportCompleted, map[string]any{
		"operation_id": opID,
		"peer":         peer,
		"summary":      sum,
	})
	return sum, nil
}

func (c *Coordinator) importFrom(ctx context.Context, opID, peer string) (models.ImportSummary, error) {
	zipPath, err := c.client.Fetch(ctx, peer)
	if err != nil {
		return models.ImportSummary{}, err
	}
	staging := c.stagingDir()
	defer func() {
		if err := os.Remove(zipPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("syncer: remove downloaded archive", slog.String("error", err.Error()))
		}
		if err := os.RemoveAll(staging); err != nil {
			c.logger.Warn("syncer: remove staging dir", slog.String("error", err.Error()))
		}
	}()

	digest, size, err := checksum.File(zipPath)
	if err != nil {
		return models.ImportSummary{}, apperr.New(apperr.KindInternal, "checksum archive", err)
	}

	if err := os.RemoveAll(staging); err != nil {
		return models.ImportSummary{}, apperr.New(apperr.KindInternal, "clear staging dir", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return models.ImportSummary{}, apperr.New(apperr.KindInternal, "create staging dir", err)
	}
	if err := archive.Unpack(zipPath, staging); err != nil {
		return models.ImportSummary{}, apperr.Wrap(apperr.KindInternal, "unpack archive", err)
	}

	data, err := os.ReadFile(filepath.Join(staging, archive.ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return models.ImportSummary{}, apperr.New(apperr.KindNoManifestFound, "archive has no "+archive.ManifestName, nil)
	}
	if err != nil {
		return models.ImportSummary{}, apperr.New(apperr.KindInternal, "read manifest", err)
	}
	m, err := archive.Decode(data)
	if err != nil {
		return models.ImportSummary{}, err
	}

	if err := c.clearAll(ctx); err != nil {
		return models.ImportSummary{}, err
	}

	for _, a := range m.Articles {
		if err := c.store.InsertArticle(ctx, a); err != nil {
			return models.ImportSummary{}, apperr.Wrap(apperr.KindInternal, "insert article", err)
		}
	}
	for _, h := range m.HealthRecords {
		if err := c.store.InsertHealthRecord(ctx, h.FromWire()); err != nil {
			return models.ImportSummary{}, apperr.Wrap(apperr.KindInternal, "insert health record", err)
		}
	}
	images := 0
	for _, e := range m.Events {
		if e.HasPhoto() {
			relinked, err := c.relinkPhoto(staging, e.PhotoPath)
			if err != nil {
				return models.ImportSummary{}, err
			}
			if relinked != "" {
				images++
			}
			e.PhotoPath = relinked
		}
		if err := c.store.InsertEvent(ctx, e); err != nil {
			return models.ImportSummary{}, apperr.Wrap(apperr.KindInternal, "insert event", err)
		}
	}

	sum := models.ImportSummary{
		TotalSizeBytes:    size,
		Checksum:          digest,
		ArticleCount:      len(m.Articles),
		HealthRecordCount: len(m.HealthRecords),
		EventCount:        len(m.Events),
		ImageCount:        images,
	}
	c.logger.Info("syncer: import completed",
		slog.String("operation_id", opID),
		slog.String("peer", peer),
		slog.Int64("size_bytes", size),
		slog.Int("articles", sum.ArticleCount),
		slog.Int("health_records", sum.HealthRecordCount),
		slog.Int("events", sum.EventCount),
		slog.Int("images", images))
	return sum, nil
}

func (c *Coordinator) clearAll(ctx context.Context) error {
	if err := c.store.ClearArticles(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "clear articles", err)
	}
	if err := c.store.ClearHealthRecords(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "clear health records", err)
	}
	if err := c.store.ClearEvents(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "clear events", err)
	}
	return nil
}

// relinkPhoto copies the staged image matching ref's file name into the
// photo directory and returns the new path, or "" when the archive does not
// carry it.
func (c *Coordinator) relinkPhoto(staging, ref string) (string, error) {
	name := filepath.Base(ref)
	if _, err := c.photos.Path(name); err != nil {
		c.logger.Warn("syncer: unusable photo name, clearing reference", slog.String("photo", ref))
		return "", nil
	}
	src := filepath.Join(staging, archive.ImagesDir, name)
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		c.logger.Warn("syncer: photo missing from archive, clearing reference",
			slog.String("photo", ref))
		return "", nil
	}
	if c.photos.Exists(name) {
		c.logger.Debug("syncer: replacing managed photo", slog.String("photo", name))
	}
	dst, err := c.photos.Import(name, src)
	if err != nil {
		return "", apperr.New(apperr.KindInternal, "copy photo "+name, err)
	}
	return dst, nil
}
