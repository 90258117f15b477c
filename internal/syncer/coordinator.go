// Package syncer orchestrates the export, LAN serving and destructive import
// of the local collections.
package syncer

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/eatsync/internal/apperr"
	"github.com/starford/eatsync/internal/storage"
	"github.com/starford/eatsync/internal/store"
	"github.com/starford/eatsync/internal/transfer"
)

// Cache layout under the coordinator's cache directory.
const (
	backupDirName  = "sync_backup"
	backupZipName  = "backup.zip"
	importZipName  = "import_temp.zip"
	stagingDirName = "import_temp_extracted"
)

// Status event kinds passed to the EventCallback.
const (
	EventExportCompleted = "export.completed"
	EventServerStarted   = "server.started"
	EventServerStopped   = "server.stopped"
	EventImportStarted   = "import.started"
	EventImportCompleted = "import.completed"
	EventSyncFailed      = "sync.failed"
)

// EventCallback receives status events. It is called synchronously and must
// not block.
type EventCallback func(kind string, data any)

// Status is a point-in-time view of the coordinator.
type Status struct {
	Busy      bool        `json:"busy"`
	Serving   bool        `json:"serving"`
	Address   string      `json:"address,omitempty"`
	LastEvent string      `json:"last_event,omitempty"`
	LastError string      `json:"last_error,omitempty"`
	ErrorCode apperr.Kind `json:"error_code,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
	// PhotoDir and PhotoCount describe the managed photo directory.
	PhotoDir   string `json:"photo_dir"`
	PhotoCount int    `json:"photo_count"`
}

// Coordinator ties the store, the photo directory, the archive codec and the
// transfer endpoints together. At most one export or import runs at a time;
// a second one fails with a Busy error.
type Coordinator struct {
	store  store.Store
	photos storage.Provider

	cacheDir       string
	port           int
	maxAttempts    int
	bindHost       string
	hostAddr       func() string
	fetchTimeout   time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger
	onEvent        EventCallback
	now            func() time.Time

	busy atomic.Bool

	// mu serializes access to the sender archive and the server.
	mu     sync.Mutex
	server *transfer.Server
	client *transfer.Client

	statusMu sync.Mutex
	status   Status
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCacheDir sets the directory holding the archive and staging files.
func WithCacheDir(dir string) Option {
	return func(c *Coordinator) { c.cacheDir = dir }
}

// WithServerPort sets the preferred LAN port and how many following ports to
// try when it is taken.
func WithServerPort(port, maxAttempts int) Option {
	return func(c *Coordinator) {
		c.port = port
		c.maxAttempts = maxAttempts
	}
}

// WithBindHost restricts the LAN server to one local address.
func WithBindHost(host string) Option {
	return func(c *Coordinator) { c.bindHost = host }
}

// WithHostAddr overrides how the advertised LAN host is discovered.
func WithHostAddr(fn func() string) Option {
	return func(c *Coordinator) { c.hostAddr = fn }
}

// WithFetchTimeouts sets the whole-download and TCP connect timeouts.
func WithFetchTimeouts(fetch, connect time.Duration) Option {
	return func(c *Coordinator) {
		c.fetchTimeout = fetch
		c.connectTimeout = connect
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithEventCallback registers a status event listener.
func WithEventCallback(cb EventCallback) Option {
	return func(c *Coordinator) { c.onEvent = cb }
}

// New creates a Coordinator over the given record store and photo directory.
func New(st store.Store, photos storage.Provider, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:          st,
		photos:         photos,
		cacheDir:       filepath.Join(os.TempDir(), "eatsync"),
		port:           transfer.DefaultPort,
		maxAttempts:    transfer.DefaultMaxAttempts,
		hostAddr:       transfer.LocalIPv4,
		fetchTimeout:   transfer.DefaultFetchTimeout,
		connectTimeout: transfer.DefaultConnectTimeout,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.server = transfer.NewServer(c.archivePath(),
		transfer.WithBindHost(c.bindHost),
		transfer.WithHostAddr(c.hostAddr),
		transfer.WithServerLogger(c.logger))
	c.client = transfer.NewClient(filepath.Join(c.cacheDir, importZipName),
		transfer.WithTimeout(c.fetchTimeout),
		transfer.WithConnectTimeout(c.connectTimeout),
		transfer.WithDefaultPort(c.port),
		transfer.WithClientLogger(c.logger))
	return c
}

// Status returns the current coordinator status.
func (c *Coordinator) Status() Status {
	c.statusMu.Lock()
	st := c.status
	c.statusMu.Unlock()

	st.Busy = c.busy.Load()
	if addr, ok := c.server.Address(); ok {
		st.Serving = true
		st.Address = addr.String()
	} else {
		st.Serving = false
		st.Address = ""
	}

	st.PhotoDir = c.photos.Root()
	if names, err := c.photos.List(); err != nil {
		c.logger.Warn("syncer: list photos", slog.String("error", err.Error()))
	} else {
		st.PhotoCount = len(names)
	}
	return st
}

func (c *Coordinator) backupDir() string   { return filepath.Join(c.cacheDir, backupDirName) }
func (c *Coordinator) archivePath() string { return filepath.Join(c.backupDir(), backupZipName) }
func (c *Coordinator) stagingDir() string  { return filepath.Join(c.cacheDir, stagingDirName) }

// acquire claims the single export/import slot.
func (c *Coordinator) acquire() (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, apperr.New(apperr.KindBusy, "", nil)
	}
	return func() { c.busy.Store(false) }, nil
}

func newOperationID() string { return uuid.NewString() }

func (c *Coordinator) emit(kind string, data map[string]any) {
	c.statusMu.Lock()
	c.status.LastEvent = kind
	c.status.UpdatedAt = c.now().UTC()
	if kind == EventSyncFailed {
		c.status.LastError, _ = data["error"].(string)
		c.status.ErrorCode, _ = data["code"].(apperr.Kind)
	} else if kind != EventImportStarted {
		c.status.LastError = ""
		c.status.ErrorCode = ""
	}
	c.statusMu.Unlock()

	if c.onEvent != nil {
		c.onEvent(kind, data)
	}
}

func (c *Coordinator) fail(opID, operation string, err error) {
	c.logger.Error("syncer: operation failed",
		slog.String("operation", operation),
		slog.String("operation_id", opID),
		slog.String("error", err.Error()))
	c.emit(EventSyncFailed, map[string]any{
		"operation_id": opID,
		"operation":    operation,
		"error":        err.Error(),
		"code":         apperr.KindOf(err),
	})
}
