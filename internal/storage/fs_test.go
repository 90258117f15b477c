package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func tempPhotos(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(filepath.Join(t.TempDir(), "photos"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestPutCreatesRoot(t *testing.T) {
	s := tempPhotos(t)
	abs, err := s.Put("a.jpg", bytes.NewReader([]byte("jpeg")))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if abs != filepath.Join(s.Root(), "a.jpg") {
		t.Errorf("path = %q", abs)
	}
	got, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "jpeg" {
		t.Errorf("content = %q", got)
	}
	if !s.Exists("a.jpg") {
		t.Error("Exists should be true after Put")
	}
}

func TestImportOverwrites(t *testing.T) {
	s := tempPhotos(t)
	_, _ = s.Put("meal.jpg", bytes.NewReader([]byte("old")))

	src := filepath.Join(t.TempDir(), "meal.jpg")
	if err := os.WriteFile(src, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	abs, err := s.Import("meal.jpg", src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, _ := os.ReadFile(abs)
	if string(got) != "new" {
		t.Errorf("content = %q, want overwritten", got)
	}
}

func TestImportMissingSource(t *testing.T) {
	s := tempPhotos(t)
	if _, err := s.Import("x.jpg", "/no/such/file.jpg"); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestListSkipsTempAndDirs(t *testing.T) {
	s := tempPhotos(t)
	if names, err := s.List(); err != nil || len(names) != 0 {
		t.Fatalf("List on missing root = %v, %v", names, err)
	}
	_, _ = s.Put("b.jpg", bytes.NewReader(nil))
	_, _ = s.Put("a.jpg", bytes.NewReader(nil))
	if err := os.Mkdir(filepath.Join(s.Root(), "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), ".eatsync-tmp-123"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "a.jpg" || names[1] != "b.jpg" {
		t.Errorf("names = %v", names)
	}
	if s.Exists("c.jpg") {
		t.Error("Exists should be false for an unknown photo")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempPhotos(t)
	cases := []string{
		"../../etc/passwd",
		"../outside.jpg",
		"/etc/shadow",
		"sub/inner.jpg",
		"..",
		"",
	}
	for _, p := range cases {
		if _, err := s.Path(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.Put(p, bytes.NewReader([]byte("x"))); err == nil {
			t.Errorf("expected error for put to %q", p)
		}
	}
}

func TestAtomicPutNoLeftovers(t *testing.T) {
	s := tempPhotos(t)
	_, _ = s.Put("atomic.jpg", bytes.NewReader([]byte("original")))
	if _, err := s.Put("atomic.jpg", bytes.NewReader([]byte("updated"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, ".eatsync-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "eatsync-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
