package syncer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/eatsync/internal/apperr"
	"github.com/starford/eatsync/internal/archive"
	"github.com/starford/eatsync/internal/models"
	"github.com/starford/eatsync/internal/storage"
	"github.com/starford/eatsync/internal/store"
	"github.com/starford/eatsync/internal/testutil"
)

type recorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorder) record(kind string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newCoordinator(t *testing.T, st store.Store, photos storage.Provider) (*Coordinator, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(st, photos,
		WithCacheDir(filepath.Join(t.TempDir(), "cache")),
		WithServerPort(freePort(t), 10),
		WithBindHost("127.0.0.1"),
		WithHostAddr(func() string { return "127.0.0.1" }),
		WithFetchTimeouts(5*time.Second, time.Second),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEventCallback(rec.record),
	)
	t.Cleanup(func() { _ = c.StopLanServer() })
	return c, rec
}

func ptr(f float64) *float64 { return &f }

// seedSender fills st with two articles, a weight and a blood pressure record,
// and two events: one with a photo on disk and one whose photo is gone.
func seedSender(t *testing.T, st store.Store) (photo string) {
	t.Helper()
	photo = testutil.WritePhoto(t, t.TempDir(), "meal.jpg", []byte("jpeg-bytes"))
	testutil.Seed(t, st,
		[]models.ArticleRecord{
			{Title: "Oats", Content: "fiber", URL: "https://a.example/oats", Timestamp: 10},
			{Title: "Eggs", Content: "protein", URL: "https://a.example/eggs", Timestamp: 20},
		},
		[]models.HealthRecord{
			{Timestamp: 100, Kind: models.HealthWeight, Value1: 70},
			{Timestamp: 200, Kind: models.HealthBloodPressure, Value1: 120, Value2: ptr(80)},
		},
		[]models.EventRecord{
			{Category: "Meal", Timestamp: 1000, PhotoPath: photo},
			{Category: "Snack", Timestamp: 2000, PhotoPath: "/no/such/dir/gone.jpg"},
		},
	)
	return photo
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func servingBytes(t *testing.T, body []byte) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestExportData(t *testing.T) {
	db := testutil.TestDB(t)
	seedSender(t, db)
	_, photos := testutil.TestPhotos(t)
	c, rec := newCoordinator(t, db, photos)

	sum, err := c.ExportData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.ArticleCount)
	assert.Equal(t, 2, sum.HealthRecordCount)
	assert.Equal(t, 2, sum.EventCount)
	assert.Equal(t, 1, sum.ImageCount)
	assert.Positive(t, sum.SizeBytes)
	assert.Len(t, sum.Checksum, 64)
	assert.FileExists(t, sum.ArchivePath)
	assert.FileExists(t, filepath.Join(filepath.Dir(sum.ArchivePath), archive.ManifestName))

	out := t.TempDir()
	require.NoError(t, archive.Unpack(sum.ArchivePath, out))
	data, err := os.ReadFile(filepath.Join(out, archive.ManifestName))
	require.NoError(t, err)
	m, err := archive.Decode(data)
	require.NoError(t, err)

	require.Len(t, m.HealthRecords, 2)
	assert.Equal(t, 140.0, m.HealthRecords[0].Value1, "weight is doubled on the wire")
	assert.Equal(t, 120.0, m.HealthRecords[1].Value1)
	assert.FileExists(t, filepath.Join(out, archive.ImagesDir, "meal.jpg"))
	assert.NoFileExists(t, filepath.Join(out, archive.ImagesDir, "gone.jpg"))

	assert.Equal(t, []string{EventExportCompleted}, rec.Kinds())
	assert.False(t, c.Status().Busy)
}

func TestExportData_EmptyStore(t *testing.T) {
	_, photos := testutil.TestPhotos(t)
	c, _ := newCoordinator(t, testutil.TestDB(t), photos)

	sum, err := c.ExportData(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.ArticleCount)
	assert.Zero(t, sum.ImageCount)

	zr, err := zip.OpenReader(sum.ArchivePath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, archive.ManifestName, zr.File[0].Name)
}

func TestEndToEnd_ServeAndImport(t *testing.T) {
	ctx := context.Background()

	senderDB := testutil.TestDB(t)
	seedSender(t, senderDB)
	_, senderPhotos := testutil.TestPhotos(t)
	sender, senderRec := newCoordinator(t, senderDB, senderPhotos)

	addr, err := sender.StartLanServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr.Host)
	st := sender.Status()
	assert.True(t, st.Serving)
	assert.Equal(t, addr.String(), st.Address)

	receiverDB := testutil.TestDB(t)
	old := make([]models.ArticleRecord, 5)
	for i := range old {
		old[i] = models.ArticleRecord{Title: "old", Timestamp: int64(i)}
	}
	testutil.Seed(t, receiverDB, old, nil, []models.EventRecord{{Category: "stale", Timestamp: 1}})
	photoDir, receiverPhotos := testutil.TestPhotos(t)
	_, err = receiverPhotos.Put("meal.jpg", strings.NewReader("stale"))
	require.NoError(t, err)
	receiver, receiverRec := newCoordinator(t, receiverDB, receiverPhotos)
	assert.Equal(t, 1, receiver.Status().PhotoCount)

	sum, err := receiver.ImportData(ctx, addr.String())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ArticleCount)
	assert.Equal(t, 2, sum.HealthRecordCount)
	assert.Equal(t, 2, sum.EventCount)
	assert.Equal(t, 1, sum.ImageCount)
	assert.Positive(t, sum.TotalSizeBytes)
	assert.Len(t, sum.Checksum, 64)

	articles, err := receiverDB.ListArticles(ctx)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "Eggs", articles[0].Title)
	assert.Equal(t, "Oats", articles[1].Title)

	health, err := receiverDB.ListHealthRecords(ctx)
	require.NoError(t, err)
	require.Len(t, health, 2)
	assert.Equal(t, 70.0, health[0].Value1, "weight restored to storage unit")
	assert.Nil(t, health[0].Value2)
	require.NotNil(t, health[1].Value2)
	assert.Equal(t, 80.0, *health[1].Value2)

	events, err := receiverDB.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, filepath.Join(photoDir, "meal.jpg"), events[0].PhotoPath)
	got, err := os.ReadFile(events[0].PhotoPath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(got))
	assert.Empty(t, events[1].PhotoPath, "missing photo reference is cleared")
	rst := receiver.Status()
	assert.Equal(t, photoDir, rst.PhotoDir)
	assert.Equal(t, 1, rst.PhotoCount, "existing photo is replaced in place")

	assert.NoFileExists(t, filepath.Join(receiver.cacheDir, importZipName))
	assert.NoDirExists(t, receiver.stagingDir())
	assert.Equal(t, []string{EventImportStarted, EventImportCompleted}, receiverRec.Kinds())

	require.NoError(t, sender.StopLanServer())
	assert.False(t, sender.Status().Serving)
	assert.NoDirExists(t, sender.backupDir())
	assert.Equal(t, []string{EventExportCompleted, EventServerStarted, EventServerStopped}, senderRec.Kinds())
}

func TestStartLanServer_RestartRefreshesArchive(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)
	_, photos := testutil.TestPhotos(t)
	c, _ := newCoordinator(t, db, photos)

	_, err := c.StartLanServer(ctx)
	require.NoError(t, err)

	testutil.Seed(t, db, []models.ArticleRecord{{Title: "late", Timestamp: 5}}, nil, nil)
	addr, err := c.StartLanServer(ctx)
	require.NoError(t, err)

	_, receiverPhotos := testutil.TestPhotos(t)
	receiver, _ := newCoordinator(t, testutil.TestDB(t), receiverPhotos)
	sum, err := receiver.ImportData(ctx, addr.String())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ArticleCount)
}

func TestStopLanServer_NotRunning(t *testing.T) {
	_, photos := testutil.TestPhotos(t)
	c, rec := newCoordinator(t, testutil.TestDB(t), photos)

	require.NoError(t, c.StopLanServer())
	require.NoError(t, c.StopLanServer())
	assert.Empty(t, rec.Kinds())
}

func TestImportData_NoManifest(t *testing.T) {
	db := testutil.TestDB(t)
	testutil.Seed(t, db, []models.ArticleRecord{{Title: "keep"}}, nil, nil)
	_, photos := testutil.TestPhotos(t)
	c, rec := newCoordinator(t, db, photos)

	peer := servingBytes(t, zipBytes(t, map[string]string{"images/a.jpg": "x"}))
	_, err := c.ImportData(context.Background(), peer)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNoManifestFound)

	articles, err := db.ListArticles(context.Background())
	require.NoError(t, err)
	assert.Len(t, articles, 1, "store untouched")

	assert.Equal(t, []string{EventImportStarted, EventSyncFailed}, rec.Kinds())
	st := c.Status()
	assert.Equal(t, EventSyncFailed, st.LastEvent)
	assert.Equal(t, apperr.KindNoManifestFound, st.ErrorCode)
	assert.NoDirExists(t, c.stagingDir())
}

func TestImportData_CorruptArchive(t *testing.T) {
	db := testutil.TestDB(t)
	testutil.Seed(t, db, []models.ArticleRecord{{Title: "keep"}}, nil, nil)
	_, photos := testutil.TestPhotos(t)
	c, _ := newCoordinator(t, db, photos)

	for name, body := range map[string][]byte{
		"garbage":      []byte("this is not a zip"),
		"bad manifest": zipBytes(t, map[string]string{archive.ManifestName: "not json"}),
		"traversal":    zipBytes(t, map[string]string{"../evil.txt": "x"}),
		"scalar records": zipBytes(t, map[string]string{
			archive.ManifestName: `{"articles":[1,"x"],"healthData":{}}`,
		}),
		"object collection": zipBytes(t, map[string]string{
			archive.ManifestName: `{"articles":[{"id":1,"title":"a"}],"events":{"id":2}}`,
		}),
	} {
		_, err := c.ImportData(context.Background(), servingBytes(t, body))
		assert.ErrorIs(t, err, apperr.ErrCorruptArchive, name)
	}

	articles, err := db.ListArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 1, "store untouched")
	assert.Equal(t, "keep", articles[0].Title)
}

func TestImportData_RemoteError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	_, photos := testutil.TestPhotos(t)
	c, _ := newCoordinator(t, testutil.TestDB(t), photos)

	_, err := c.ImportData(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	assert.ErrorIs(t, err, apperr.ErrRemoteError)
}

func TestImportData_ConnectionFailed(t *testing.T) {
	_, photos := testutil.TestPhotos(t)
	c, _ := newCoordinator(t, testutil.TestDB(t), photos)

	_, err := c.ImportData(context.Background(), "127.0.0.1:"+strconv.Itoa(freePort(t)))
	assert.ErrorIs(t, err, apperr.ErrConnectionFailed)
	assert.False(t, c.Status().Busy)
}

func TestBusyGuard(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, photos := testutil.TestPhotos(t)
	c, _ := newCoordinator(t, testutil.TestDB(t), photos)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.ImportData(ctx, strings.TrimPrefix(ts.URL, "http://"))
		done <- err
	}()
	<-entered

	assert.True(t, c.Status().Busy)
	_, err := c.ImportData(ctx, "127.0.0.1:1")
	assert.ErrorIs(t, err, apperr.ErrBusy)
	_, err = c.ExportData(ctx)
	assert.ErrorIs(t, err, apperr.ErrBusy)
	_, err = c.StartLanServer(ctx)
	assert.ErrorIs(t, err, apperr.ErrBusy)

	close(release)
	assert.ErrorIs(t, <-done, apperr.ErrRemoteError)

	_, err = c.ExportData(ctx)
	assert.NoError(t, err, "slot released after the import finished")
}

// failingStore fails every health record insert.
type failingStore struct {
	store.Store
}

func (failingStore) InsertHealthRecord(context.Context, models.HealthRecord) error {
	return errors.New("disk full")
}

func TestImportData_PartialFailureIsNotRolledBack(t *testing.T) {
	ctx := context.Background()
	senderDB := testutil.TestDB(t)
	seedSender(t, senderDB)
	_, senderPhotos := testutil.TestPhotos(t)
	sender, _ := newCoordinator(t, senderDB, senderPhotos)
	addr, err := sender.StartLanServer(ctx)
	require.NoError(t, err)

	receiverDB := testutil.TestDB(t)
	testutil.Seed(t, receiverDB, []models.ArticleRecord{{Title: "old"}}, nil, nil)
	_, receiverPhotos := testutil.TestPhotos(t)
	receiver, _ := newCoordinator(t, failingStore{receiverDB}, receiverPhotos)

	_, err = receiver.ImportData(ctx, addr.String())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInternal)

	articles, err := receiverDB.ListArticles(ctx)
	require.NoError(t, err)
	require.Len(t, articles, 2, "articles were replaced before the failure")
	events, err := receiverDB.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}
