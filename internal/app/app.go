package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
	"github.com/sophialabs/plugmock/internal/infrastructure/wiring"
)

// App owns the process lifecycle of one mock platform: initial load, hot
// reload, the HTTP listener and shutdown. Construction is left to wiring.
type App struct {
	cfg        Config
	container  *wiring.Container
	httpServer *http.Server
}

// New validates cfg and wires the platform. Definitions are not read until Run.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewText(os.Stdout, cfg.LogLevel)

	container, err := wiring.New(wiring.Params{
		RootDir:        cfg.RootDir,
		Name:           cfg.Name,
		TraceSize:      cfg.TraceSize,
		RateLimiterTTL: cfg.RateLimiterTTL,
		Logger:         logger,
		DefaultEngine:  cfg.DefaultEngine,
		State:          cfg.State,
		StatePath:      cfg.StatePath,
		Upstream:       cfg.Upstream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	return &App{
		cfg:       cfg,
		container: container,
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      container.Server(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}, nil
}

// Handler returns the HTTP handler serving mocks and the settings API.
func (a *App) Handler() http.Handler {
	return a.container.Server()
}

// Run loads the platform, serves it until ctx is cancelled or the process is
// signalled, then drains connections and releases state backends.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	logger := a.container.Logger()

	if err := a.reload(ctx); err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if w := a.watch(); w != nil {
		defer w.Stop()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", a.httpServer.Addr, "admin", "/__admin")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", "timeout", a.cfg.ShutdownTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// reload rebuilds the platform from disk and logs what is being served.
func (a *App) reload(ctx context.Context) error {
	server := a.container.Server()
	if err := server.Reload(ctx); err != nil {
		return err
	}
	logPlatform(a.container.Logger(), a.cfg, server.Platform())
	return nil
}

// watch starts hot reload. A platform that fails to reload keeps serving the
// previous definitions.
func (a *App) watch() *filesystem.Watcher {
	logger := a.container.Logger()

	w, err := filesystem.NewWatcher(a.cfg.RootDir, a.cfg.WatcherDebounce, logger, func(changed []string) {
		if err := a.reload(context.Background()); err != nil {
			logger.Error("hot reload failed, keeping previous definitions", "error", err, "changed", changed)
		}
	})
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	w.Start()
	logger.Debug("watching definitions", "root", a.cfg.RootDir, "debounce", a.cfg.WatcherDebounce)
	return w
}

func logPlatform(logger ports.Logger, cfg Config, p *platform.Platform) {
	if p == nil {
		return
	}
	active, _ := p.ActiveScenario()
	logger.Info("platform ready",
		"platform", p.Name(),
		"root", cfg.RootDir,
		"state", cfg.State,
		"components", len(p.ComponentIDs()),
		"disabled", p.DisabledPluginIDs(),
		"active_scenario", active,
	)
}
