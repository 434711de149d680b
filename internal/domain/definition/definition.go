// Package definition holds endpoint and platform definitions as authored,
// before they are compiled into pluggable endpoints.
package definition

import (
	"context"
	"errors"
)

// ErrNotFound indicates an endpoint definition was not found.
var ErrNotFound = errors.New("endpoint definition not found")

// Repository is the port for loading definitions.
type Repository interface {
	// LoadAll loads the manifest and every endpoint definition.
	LoadAll(ctx context.Context) (*Catalog, error)
}

// Catalog is everything a platform is built from.
type Catalog struct {
	Manifest  Manifest
	Endpoints []*Endpoint
}

// Endpoint returns the definition with the given id.
func (c *Catalog) Endpoint(id string) (*Endpoint, error) {
	for _, e := range c.Endpoints {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// Manifest describes the platform itself.
type Manifest struct {
	Name      string
	Flags     []Flag
	Scenarios []Scenario
}

// Flag is a declared feature flag.
type Flag struct {
	Name        string
	Default     bool
	Description string
}

// Scenario is a named platform-wide preset of flag and status overrides.
type Scenario struct {
	ID              string
	Name            string
	PluginIDs       []string
	FlagOverrides   map[string]bool
	StatusOverrides map[string]int
}

// Endpoint is an uncompiled endpoint definition.
type Endpoint struct {
	ID             string             `json:"id,omitempty"`
	Component      string             `json:"component,omitempty"`
	Route          string             `json:"route,omitempty"`
	Method         string             `json:"method,omitempty"`
	DefaultStatus  int                `json:"default_status,omitempty"`
	Responses      map[int]any        `json:"responses,omitempty"`
	Flags          []string           `json:"flags,omitempty"`
	Scenarios      []EndpointScenario `json:"scenarios,omitempty"`
	QueryResponses map[string]any     `json:"query_responses,omitempty"`
	SwaggerURL     string             `json:"swagger_url,omitempty"`
	Disabled       bool               `json:"disabled,omitempty"`
	Transform      []TransformRule    `json:"transform,omitempty"`
	Policy         *Policy            `json:"policy,omitempty"`

	// SourceFile is the file the definition was read from.
	SourceFile string `json:"source_file,omitempty"`
}

// EndpointScenario is an alternate response table for a single endpoint.
type EndpointScenario struct {
	ID        string      `json:"id,omitempty"`
	Label     string      `json:"label,omitempty"`
	Responses map[int]any `json:"responses,omitempty"`
}

// TransformRule rewrites a resolved payload when its condition holds.
// Exactly one of Set or Template is expected.
type TransformRule struct {
	// When is an expression over the flag state. Empty always applies.
	When string `json:"when,omitempty"`
	// Set maps dotted payload paths to expressions.
	Set map[string]string `json:"set,omitempty"`
	// Template replaces the whole payload.
	Template string `json:"template,omitempty"`
	// Engine selects the template engine; "" means jinja2.
	Engine string `json:"engine,omitempty"`
}

// Policy defines rate limiting and latency simulation.
type Policy struct {
	RateLimit *RateLimit `json:"rate_limit,omitempty"`
	Latency   *Latency   `json:"latency,omitempty"`
}

// RateLimit configures token-bucket rate limiting.
type RateLimit struct {
	Rate  float64 `json:"rate,omitempty"`
	Burst int     `json:"burst,omitempty"`
	Key   string  `json:"key,omitempty"`
}

// Latency configures artificial response delay.
type Latency struct {
	FixedMs  int `json:"fixed_ms,omitempty"`
	JitterMs int `json:"jitter_ms,omitempty"`
}
