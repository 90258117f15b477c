package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/starford/eatsync/internal/apperr"
)

// Client timeouts used when no option overrides them.
const (
	DefaultFetchTimeout   = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Client downloads a peer's archive to a fixed local path.
type Client struct {
	http        *resty.Client
	destPath    string
	defaultPort int
	logger      *slog.Logger

	timeout        time.Duration
	connectTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds a whole download, body included.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithConnectTimeout bounds the TCP dial.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.connectTimeout = d }
}

// WithDefaultPort sets the port used when the peer address has none.
func WithDefaultPort(port int) ClientOption {
	return func(c *Client) { c.defaultPort = port }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client that writes downloads to destPath, replacing
// whatever is there.
func NewClient(destPath string, opts ...ClientOption) *Client {
	c := &Client{
		destPath:       destPath,
		defaultPort:    DefaultPort,
		logger:         slog.Default(),
		timeout:        DefaultFetchTimeout,
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := &net.Dialer{Timeout: c.connectTimeout}
	c.http = resty.New().
		SetTimeout(c.timeout).
		SetRetryCount(0).
		SetTransport(&http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: c.timeout,
		})
	return c
}

// Fetch downloads http://<peer>/backup.zip to the Client's destination path
// and returns that path. Transport failures yield ConnectionFailed; a non-2xx
// response yields RemoteError. The destination is removed on any failure.
func (c *Client) Fetch(ctx context.Context, peer string) (string, error) {
	addr, err := NormalizeAddress(peer, c.defaultPort)
	if err != nil {
		return "", apperr.New(apperr.KindConnectionFailed, "invalid peer address", err)
	}
	url := "http://" + addr + ArchiveRoute

	if err := os.MkdirAll(filepath.Dir(c.destPath), 0o755); err != nil {
		return "", apperr.New(apperr.KindInternal, "create download dir", err)
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(c.destPath).
		Get(url)
	if err != nil {
		_ = os.Remove(c.destPath)
		c.logger.Warn("transfer: fetch failed", slog.String("url", url), slog.String("error", err.Error()))
		return "", apperr.New(apperr.KindConnectionFailed, fmt.Sprintf("fetch %s", url), err)
	}
	if !resp.IsSuccess() {
		_ = os.Remove(c.destPath)
		c.logger.Warn("transfer: peer returned error", slog.String("url", url), slog.Int("status", resp.StatusCode()))
		return "", apperr.New(apperr.KindRemoteError,
			fmt.Sprintf("peer answered %d", resp.StatusCode()), nil)
	}

	c.logger.Info("transfer: archive downloaded",
		slog.String("url", url),
		slog.String("path", c.destPath),
		slog.Duration("elapsed", time.Since(start)))
	return c.destPath, nil
}

// NormalizeAddress turns user input such as " http://192.168.1.5:8080/ " into
// host:port, adding defaultPort when no port is given.
func NormalizeAddress(peer string, defaultPort int) (string, error) {
	s := strings.TrimSpace(peer)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimRight(s, "/")
	if s == "" {
		return "", fmt.Errorf("empty peer address")
	}
	if strings.ContainsAny(s, "/ ") {
		return "", fmt.Errorf("malformed peer address %q", peer)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		// No port: bare host or bare IPv6 literal.
		host = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		return net.JoinHostPort(host, strconv.Itoa(defaultPort)), nil
	}
	if host == "" {
		return "", fmt.Errorf("missing host in %q", peer)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid port in %q", peer)
	}
	return net.JoinHostPort(host, port), nil
}
