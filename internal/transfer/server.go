// Package transfer moves a backup archive between two devices on the same
// LAN over plain HTTP.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/eatsync/internal/apperr"
)

// Wire protocol constants.
const (
	DefaultPort        = 8080
	DefaultMaxAttempts = 10
	ArchiveRoute       = "/backup.zip"
	ArchiveContentType = "application/zip"
	LivenessBody       = "Hello from eatsync LAN sync server!"
)

// State is the Server lifecycle state.
type State int

// Server states.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Server serves one archive file at GET /backup.zip. It never writes the
// archive; the caller owns its lifecycle.
type Server struct {
	archivePath string
	bindHost    string
	hostAddr    func() string
	logger      *slog.Logger

	mu    sync.Mutex
	state State
	srv   *http.Server
	addr  Address
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithBindHost restricts the listener to one local address. The default
// listens on all interfaces.
func WithBindHost(host string) ServerOption {
	return func(s *Server) { s.bindHost = host }
}

// WithHostAddr overrides how the advertised host is discovered.
func WithHostAddr(fn func() string) ServerOption {
	return func(s *Server) { s.hostAddr = fn }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a stopped Server for the archive at archivePath.
func NewServer(archivePath string, opts ...ServerOption) *Server {
	s := &Server{
		archivePath: archivePath,
		hostAddr:    LocalIPv4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler the Server runs.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(ArchiveRoute, s.serveArchive)
	r.NotFound(serveLiveness)
	r.MethodNotAllowed(serveLiveness)
	return r
}

// Start binds preferredPort, moving to the next port on failure, for at most
// maxAttempts retries (ports preferredPort..preferredPort+maxAttempts). A
// Server that is already running is stopped first. Exhausting the range
// returns a PortUnavailable error wrapping the last bind error.
func (s *Server) Start(preferredPort, maxAttempts int) (Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.state = StateStarting

	if maxAttempts < 0 {
		maxAttempts = 0
	}
	last := preferredPort + maxAttempts
	var lastErr error
	for port := preferredPort; port <= last; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.bindHost, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			s.logger.Warn("transfer: port occupied, trying next",
				slog.Int("port", port),
				slog.String("error", err.Error()))
			continue
		}

		srv := &http.Server{Handler: s.Handler()}
		s.srv = srv
		s.addr = Address{Host: s.hostAddr(), Port: port}
		s.state = StateRunning

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("transfer: serve failed", slog.String("error", err.Error()))
			}
		}()

		s.logger.Info("transfer: server started",
			slog.String("address", s.addr.String()),
			slog.String("archive", s.archivePath))
		return s.addr, nil
	}

	s.state = StateStopped
	return Address{}, apperr.New(apperr.KindPortUnavailable,
		fmt.Sprintf("no free port in %d-%d", preferredPort, last), lastErr)
}

// Stop closes the listener and any open connections. It is a no-op when the
// Server is not running.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Server) stopLocked() {
	if s.srv == nil {
		s.state = StateStopped
		return
	}
	if err := s.srv.Close(); err != nil {
		s.logger.Warn("transfer: close failed", slog.String("error", err.Error()))
	}
	s.logger.Info("transfer: server stopped", slog.String("address", s.addr.String()))
	s.srv = nil
	s.addr = Address{}
	s.state = StateStopped
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the advertised address while running.
func (s *Server) Address() (Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr, s.state == StateRunning
}

// serveArchive streams the archive with chunked encoding, or falls back to
// the liveness body when no archive is on disk.
func (s *Server) serveArchive(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.archivePath)
	if err != nil {
		serveLiveness(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ArchiveContentType)
	w.WriteHeader(http.StatusOK)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
	n, err := io.Copy(w, f)
	if err != nil {
		s.logger.Warn("transfer: download interrupted",
			slog.String("peer", r.RemoteAddr),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Info("transfer: archive served", slog.String("peer", r.RemoteAddr), slog.Int64("bytes", n))
}

func serveLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(LivenessBody))
}
