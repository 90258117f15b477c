package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/eatsync/internal/apperr"
)

// Pack writes a zip container to dst holding manifest as data.json and every
// photo under images/<basename>. Photos that no longer exist are skipped, as
// are later photos sharing a basename with an earlier one; each dropped
// duplicate is logged as a warning. Since import relinks events by basename,
// every event naming that basename ends up pointing at the first photo. The
// container is written to a temp file and renamed into place. Pack returns
// the number of photos stored.
func Pack(dst string, manifest []byte, photos []string) (int, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("archive: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".eatsync-zip-*")
	if err != nil {
		return 0, fmt.Errorf("archive: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	w, err := zw.Create(ManifestName)
	if err != nil {
		return 0, fmt.Errorf("archive: create manifest entry: %w", err)
	}
	if _, err := w.Write(manifest); err != nil {
		return 0, fmt.Errorf("archive: write manifest entry: %w", err)
	}

	packed := 0
	names := make(map[string]struct{}, len(photos))
	for _, p := range photos {
		name := filepath.Base(p)
		if _, dup := names[name]; dup {
			slog.Warn("archive: duplicate photo name, keeping the first",
				slog.String("name", name),
				slog.String("dropped", p))
			continue
		}
		ok, err := addFile(zw, path.Join(ImagesDir, name), p)
		if err != nil {
			return 0, err
		}
		if ok {
			names[name] = struct{}{}
			packed++
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("archive: finish zip: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("archive: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("archive: close temp: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("archive: rename: %w", err)
	}
	success = true
	return packed, nil
}

func addFile(zw *zip.Writer, entry, src string) (bool, error) {
	f, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("archive: open photo %s: %w", src, err)
	}
	defer f.Close()

	w, err := zw.Create(entry)
	if err != nil {
		return false, fmt.Errorf("archive: create entry %s: %w", entry, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return false, fmt.Errorf("archive: copy photo %s: %w", src, err)
	}
	return true, nil
}

// Unpack extracts every entry of the zip at src into destDir, creating
// intermediate directories. A container that cannot be opened or read, or an
// entry that would land outside destDir, yields a CorruptArchive error.
func Unpack(src, destDir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return apperr.New(apperr.KindCorruptArchive, "cannot open archive", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("archive: resolve dest: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("archive: mkdir dest: %w", err)
	}

	for _, f := range zr.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return apperr.New(apperr.KindCorruptArchive, "unsafe entry name", err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("archive: mkdir %s: %w", f.Name, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// entryPath resolves an entry name under root and rejects traversal.
func entryPath(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == "." {
		return "", fmt.Errorf("invalid entry %q", name)
	}
	target := filepath.Join(root, cleaned)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir for %s: %w", f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return apperr.New(apperr.KindCorruptArchive, "cannot read entry "+f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return apperr.New(apperr.KindCorruptArchive, "cannot read entry "+f.Name, err)
		}
		return fmt.Errorf("archive: extract %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", target, err)
	}
	return nil
}
