package internal

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Sync   SyncConfig        `yaml:"sync"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the control API server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig holds the LAN sync configuration.
//
// The LAN server tries Port first and then up to MaxAttempts following
// ports, so Port+MaxAttempts must stay a valid port.
type SyncConfig struct {
	CacheDir       string        `yaml:"cache_dir"`
	PhotosDir      string        `yaml:"photos_dir"`
	Port           int           `yaml:"port"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BindHost       string        `yaml:"bind_host"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.CacheDir, validation.Required),
		validation.Field(&c.PhotosDir, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxAttempts, validation.Min(0), validation.Max(100)),
		validation.Field(&c.BindHost, validation.By(ipAddress)),
		validation.Field(&c.FetchTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ConnectTimeout, validation.Required, validation.Min(100*time.Millisecond)),
	); err != nil {
		return err
	}
	if c.Port+c.MaxAttempts > 65535 {
		return fmt.Errorf("sync: port range %d-%d exceeds 65535", c.Port, c.Port+c.MaxAttempts)
	}
	if c.ConnectTimeout > c.FetchTimeout {
		return fmt.Errorf("sync: connect_timeout %s exceeds fetch_timeout %s", c.ConnectTimeout, c.FetchTimeout)
	}
	return nil
}

func ipAddress(v any) error {
	s, _ := v.(string)
	if s == "" || net.ParseIP(s) != nil {
		return nil
	}
	return fmt.Errorf("must be a valid IP address")
}

// AuthConfig holds authentication configuration for the control API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// The LAN transfer endpoint is never authenticated.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 7070,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./eatsync.db",
		},
		Sync: SyncConfig{
			CacheDir:       "./cache",
			PhotosDir:      "./files/photos",
			Port:           8080,
			MaxAttempts:    10,
			FetchTimeout:   30 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
