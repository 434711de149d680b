package app

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	stateBackends = []string{"memory", "file", "sqlite"}
	engines       = []string{"", "jinja2", "expr"}
	logLevels     = []string{"debug", "info", "warn", "error"}
)

// Config holds everything needed to serve one mock platform.
type Config struct {
	// RootDir holds platform.yaml and the endpoint definition files.
	RootDir string
	// Name replaces the manifest name, and with it the state namespace.
	Name      string
	Port      int
	TraceSize int
	LogLevel  string

	// State selects where flags, status overrides and scenario selections live
	// between restarts. StatePath is a directory for "file" and a database
	// file (or directory) for "sqlite".
	State     string
	StatePath string
	// Upstream receives requests for disabled endpoints whose route is a path.
	Upstream string

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DefaultEngine string // "" = jinja2, "expr"
}

// DefaultConfig returns a Config serving ./mock on :8080 with in-memory state.
func DefaultConfig() Config {
	return Config{
		RootDir:   "./mock",
		Port:      8080,
		TraceSize: 200,
		LogLevel:  "debug",

		State:     "memory",
		StatePath: "./.plugmock",

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate reports the first setting that cannot be served.
func (c Config) Validate() error {
	switch {
	case c.RootDir == "":
		return fmt.Errorf("%w: root directory is required", ErrInvalidConfig)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.TraceSize <= 0:
		return fmt.Errorf("%w: trace size must be positive", ErrInvalidConfig)
	case c.State != "" && !slices.Contains(stateBackends, c.State):
		return fmt.Errorf("%w: unknown state backend %q (supported: memory, file, sqlite)", ErrInvalidConfig, c.State)
	case c.State != "" && c.State != "memory" && c.StatePath == "":
		return fmt.Errorf("%w: state path is required for %s state", ErrInvalidConfig, c.State)
	case !slices.Contains(engines, c.DefaultEngine):
		return fmt.Errorf("%w: unknown template engine %q", ErrInvalidConfig, c.DefaultEngine)
	case c.LogLevel != "" && !slices.Contains(logLevels, c.LogLevel):
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	if c.Upstream != "" {
		u, err := url.Parse(c.Upstream)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: upstream must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.Upstream)
		}
	}
	return nil
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
