package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sophialabs/plugmock/internal/app"
)

func main() {
	cfg := app.DefaultConfig()
	flag.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory for endpoint definitions")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "platform name (overrides the manifest)")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "number of trace entries to keep")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.State, "state", cfg.State, "state backend (memory, file, sqlite)")
	flag.StringVar(&cfg.StatePath, "state-path", cfg.StatePath, "state directory, or sqlite database path")
	flag.StringVar(&cfg.Upstream, "upstream", cfg.Upstream, "base URL for passthrough of disabled endpoints")
	flag.StringVar(&cfg.DefaultEngine, "default-engine", cfg.DefaultEngine, "default template engine for transforms (jinja2, expr)")
	flag.DurationVar(&cfg.WatcherDebounce, "watch-debounce", cfg.WatcherDebounce, "quiet period before reloading changed definitions")
	flag.Parse()

	a, err := app.New(cfg)
	if err != nil {
		_, err := fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		if err != nil {
			return
		}
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		_, err := fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if err != nil {
			return
		}
		os.Exit(1)
	}
}
