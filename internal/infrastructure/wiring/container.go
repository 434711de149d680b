package wiring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/domain/trace"
	inboundhttp "github.com/sophialabs/plugmock/internal/infrastructure/inbound/http"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/sqlstore"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/template"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
	"github.com/sophialabs/plugmock/internal/infrastructure/services"
	"github.com/sophialabs/plugmock/internal/infrastructure/usecases"
)

// State backends.
const (
	StateMemory = "memory"
	StateFile   = "file"
	StateSQLite = "sqlite"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	RootDir        string
	Name           string // overrides the manifest name when set
	TraceSize      int
	RateLimiterTTL time.Duration
	Logger         ports.Logger
	DefaultEngine  string // "" = jinja2, "expr"
	State          string // memory, file, sqlite
	StatePath      string
	Upstream       string
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger           ports.Logger
	server           *inboundhttp.Server
	loadUC           *usecases.LoadEndpointsUseCase
	rateLimiterStore *ratelimit.TokenBucketStore
	traceBuf         *trace.RingBuffer
	sqlStore         *sqlstore.Store
	closeOnce        sync.Once
}

// New constructs all infrastructure components. Fallible operations (repository,
// state backend) run before goroutine-starting operations (rate limiter store) to
// avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	if _, err := os.Stat(p.RootDir); err != nil {
		return nil, fmt.Errorf("failed to access root directory: %w", err)
	}

	repo, err := filesystem.NewYAMLRepository(p.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	clk := clock.New()
	registry := template.NewRegistry(clk)
	if p.DefaultEngine != "" {
		if err := registry.SetDefaultEngine(p.DefaultEngine); err != nil {
			return nil, err
		}
	}
	compiler := services.NewCompiler(registry)

	c := &Container{logger: p.Logger}
	providers, err := c.providerFactory(p)
	if err != nil {
		return nil, err
	}

	// Start background goroutine only after all fallible ops succeed.
	c.rateLimiterStore = ratelimit.NewTokenBucketStore(p.RateLimiterTTL)
	c.traceBuf = trace.NewRingBuffer(p.TraceSize)

	c.loadUC = usecases.NewLoadEndpointsUseCase(repo, compiler, p.Logger)
	if p.Name != "" {
		c.loadUC.SetName(p.Name)
	}
	handleReqUC := usecases.NewHandleRequestUseCase(clk, c.rateLimiterStore, p.Logger, c.traceBuf)

	c.server = inboundhttp.NewServer(handleReqUC, c.loadUC, providers, c.rateLimiterStore, c.traceBuf, clk, p.Logger)
	if err := c.server.SetUpstream(p.Upstream); err != nil {
		c.Close()
		return nil, err
	}
	c.addReadinessChecks(p.RootDir)

	return c, nil
}

// addReadinessChecks makes the readiness endpoint fail when the definitions
// directory disappears or the state database stops answering.
func (c *Container) addReadinessChecks(rootDir string) {
	c.server.AddReadinessCheck("definitions", func(context.Context) error {
		_, err := os.Stat(rootDir)
		return err
	})
	if c.sqlStore != nil {
		c.server.AddReadinessCheck("state", c.sqlStore.Ping)
	}
}

// providerFactory selects the state backend. Providers are cached per
// namespace so a reload reuses the instance holding the current state.
func (c *Container) providerFactory(p Params) (inboundhttp.ProviderFactory, error) {
	var open func(namespace string) (platform.Provider, error)

	switch strings.ToLower(p.State) {
	case "", StateMemory:
		open = func(namespace string) (platform.Provider, error) {
			return platform.NewMemoryProvider(), nil
		}
	case StateFile:
		open = func(namespace string) (platform.Provider, error) {
			return filesystem.OpenStateFile(p.StatePath, namespace)
		}
	case StateSQLite:
		store, err := sqlstore.Open(context.Background(), sqlitePath(p.StatePath))
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		c.sqlStore = store
		open = func(namespace string) (platform.Provider, error) {
			return store.Provider(namespace)
		}
	default:
		return nil, fmt.Errorf("unknown state backend: %q (supported: memory, file, sqlite)", p.State)
	}

	var mu sync.Mutex
	cache := make(map[string]platform.Provider)
	return func(namespace string) (platform.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		if provider, ok := cache[namespace]; ok {
			return provider, nil
		}
		provider, err := open(namespace)
		if err != nil {
			return nil, err
		}
		c.logger.Info("state backend ready", "backend", p.State, "namespace", namespace)
		cache[namespace] = provider
		return provider, nil
	}, nil
}

// sqlitePath treats a path without a database extension as a directory.
func sqlitePath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return path
	}
	return filepath.Join(path, "state.db")
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		if c.rateLimiterStore != nil {
			c.rateLimiterStore.Stop()
		}
		if c.sqlStore != nil {
			if err := c.sqlStore.Close(); err != nil {
				c.logger.Warn("failed to close state database", "error", err)
			}
		}
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP mock server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// LoadEndpointsUseCase returns the use case for loading and compiling endpoints.
func (c *Container) LoadEndpointsUseCase() *usecases.LoadEndpointsUseCase {
	return c.loadUC
}

// RateLimiterStore returns the token bucket store for rate limiting.
func (c *Container) RateLimiterStore() *ratelimit.TokenBucketStore {
	return c.rateLimiterStore
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
