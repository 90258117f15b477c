package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS implements Provider backed by a directory on the local file system.
type FS struct {
	root string // absolute path to the photo directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a provider rooted at dir. The directory is created on the
// first write if it does not exist yet, but dir must not name a file.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err == nil && !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute photo directory.
func (f *FS) Root() string {
	return f.root
}

// Path validates that name is a plain file name (no separators, no
// traversal) and returns its absolute path under the root.
func (f *FS) Path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || cleaned == "." || cleaned == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("storage: invalid filename: %s", name)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes photo root: %s", name)
	}
	return abs, nil
}

// Exists reports whether a regular file with this name is stored.
func (f *FS) Exists(name string) bool {
	abs, err := f.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Put atomically writes r: tmp file → fsync → rename.
func (f *FS) Put(name string, r io.Reader) (string, error) {
	abs, err := f.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(f.root, ".eatsync-tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return abs, nil
}

// Import copies the file at src into the photo directory under name.
func (f *FS) Import(name, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("storage: open %s: %w", src, err)
	}
	defer in.Close()
	return f.Put(name, in)
}

// List returns the names of stored photos in lexical order. A missing root
// yields an empty list.
func (f *FS) List() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".eatsync-tmp-") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

