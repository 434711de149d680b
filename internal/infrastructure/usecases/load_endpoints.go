package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/plugmock/internal/domain/definition"
	"github.com/sophialabs/plugmock/internal/domain/endpoint"
	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
	"github.com/sophialabs/plugmock/internal/infrastructure/services"
)

// Loaded is a compiled definition set, ready to back a platform.
type Loaded struct {
	Name      string
	Catalog   *definition.Catalog
	Endpoints []endpoint.PluggableEndpoint
	Flags     []platform.Flag
	Scenarios []platform.Scenario
	Routes    *services.RouteIndex
	// Skipped holds endpoint ids that failed to compile, with the reason.
	Skipped map[string]string
}

// NewPlatform builds a platform over the loaded endpoints.
func (l *Loaded) NewPlatform(provider platform.Provider, logger platform.Logger) (*platform.Platform, error) {
	return platform.New(platform.Options{
		Name:      l.Name,
		Endpoints: l.Endpoints,
		Flags:     l.Flags,
		Scenarios: l.Scenarios,
		Provider:  provider,
		Logger:    logger,
	})
}

// LoadEndpointsUseCase loads all definitions, compiles them, and builds a route index.
type LoadEndpointsUseCase struct {
	repo     definition.Repository
	compiler *services.Compiler
	logger   ports.Logger
	name     string
}

// NewLoadEndpointsUseCase creates a new use case.
func NewLoadEndpointsUseCase(repo definition.Repository, compiler *services.Compiler, logger ports.Logger) *LoadEndpointsUseCase {
	return &LoadEndpointsUseCase{
		repo:     repo,
		compiler: compiler,
		logger:   logger,
	}
}

// SetName overrides the platform name declared by the manifest.
func (uc *LoadEndpointsUseCase) SetName(name string) {
	uc.name = name
}

// Execute loads, compiles and indexes every endpoint. Endpoints that fail to
// compile are logged and left out; duplicate ids fail the whole load.
func (uc *LoadEndpointsUseCase) Execute(ctx context.Context) (*Loaded, error) {
	catalog, err := uc.repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	uc.logger.Info("loaded definitions from repository", "endpoints", len(catalog.Endpoints))

	ids := make(map[string]bool, len(catalog.Endpoints))
	for _, d := range catalog.Endpoints {
		if ids[d.ID] {
			return nil, fmt.Errorf("%w: %q", endpoint.ErrDuplicateID, d.ID)
		}
		ids[d.ID] = true
	}

	loaded := &Loaded{
		Name:    catalog.Manifest.Name,
		Catalog: catalog,
		Routes:  services.NewRouteIndex(),
		Skipped: make(map[string]string),
	}
	if uc.name != "" {
		loaded.Name = uc.name
	}

	for _, d := range catalog.Endpoints {
		ep, err := uc.compiler.CompileEndpoint(d)
		if err != nil {
			loaded.Skipped[d.ID] = err.Error()
			uc.logger.Warn("failed to compile endpoint", "id", d.ID, "file", d.SourceFile, "error", err)
			continue
		}
		loaded.Endpoints = append(loaded.Endpoints, ep)
		uc.logger.Debug("compiled endpoint", "id", ep.ID, "method", ep.Method, "route", ep.Route)
	}

	for i := range loaded.Endpoints {
		ep := &loaded.Endpoints[i]
		if err := loaded.Routes.Add(ep); err != nil {
			uc.logger.Warn("endpoint has no servable route", "id", ep.ID, "error", err)
		}
	}
	for _, route := range loaded.Routes.Routes() {
		if len(route.Shadowed) > 0 {
			uc.logger.Warn("route shadows endpoints", "method", route.Method, "pattern", route.Pattern, "served", route.EndpointID, "shadowed", route.Shadowed)
		}
	}

	if len(loaded.Skipped) > 0 {
		uc.logger.Warn("some endpoints failed to compile", "errors", len(loaded.Skipped))
	}

	loaded.Flags, loaded.Scenarios = uc.compiler.CompileManifest(catalog.Manifest)

	uc.logger.Info("route index built", "platform", loaded.Name, "endpoints", len(loaded.Endpoints), "routes", loaded.Routes.Len())

	return loaded, nil
}
