// Package testutil provides shared test helpers for setting up record stores
// and photo directories.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/storage"
	"github.com/starford/eatsync/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "eatsync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestPhotos creates a temporary photo directory with a storage.Provider.
func TestPhotos(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	photos, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, photos
}

// WritePhoto writes content to dir/name and returns the absolute path.
func WritePhoto(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}

// Seed inserts the given records into st.
func Seed(t *testing.T, st store.Store, articles []models.ArticleRecord, health []models.HealthRecord, events []models.EventRecord) {
	t.Helper()
	ctx := context.Background()
	for _, a := range articles {
		if err := st.InsertArticle(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	for _, h := range health {
		if err := st.InsertHealthRecord(ctx, h); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range events {
		if err := st.InsertEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
}
