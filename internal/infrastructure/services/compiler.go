package services

import (
	"fmt"
	"strings"

	"github.com/sophialabs/plugmock/internal/domain/definition"
	"github.com/sophialabs/plugmock/internal/domain/endpoint"
	"github.com/sophialabs/plugmock/internal/domain/platform"
)

// DefaultComponent groups endpoints that do not name a component.
const DefaultComponent = "default"

// TransformCompiler turns declarative rules into an endpoint transform.
type TransformCompiler interface {
	CompileTransform(name string, rules []definition.TransformRule) (endpoint.Transform, error)
}

// Compiler turns definitions into pluggable endpoints and platform settings.
type Compiler struct {
	transforms TransformCompiler // nil means transforms are rejected
}

// NewCompiler creates a Compiler. transforms may be nil, in which case
// endpoints declaring a transform fail to compile.
func NewCompiler(transforms TransformCompiler) *Compiler {
	return &Compiler{transforms: transforms}
}

// CompileEndpoint validates a definition and builds the immutable endpoint.
//
// A missing default status falls back to 200 when the table has it, otherwise
// to the lowest status in the table.
func (c *Compiler) CompileEndpoint(d *definition.Endpoint) (endpoint.PluggableEndpoint, error) {
	var ep endpoint.PluggableEndpoint

	method, ok := endpoint.ParseMethod(d.Method)
	if !ok {
		return ep, fmt.Errorf("endpoint %q: unsupported method %q", d.ID, d.Method)
	}
	if strings.TrimSpace(d.Route) == "" {
		return ep, fmt.Errorf("endpoint %q: route is required", d.ID)
	}

	ep = endpoint.PluggableEndpoint{
		ID:                d.ID,
		ComponentID:       d.Component,
		Route:             d.Route,
		Method:            method,
		Responses:         copyTable(d.Responses),
		DefaultStatus:     d.DefaultStatus,
		Flags:             append([]string(nil), d.Flags...),
		QueryResponses:    d.QueryResponses,
		SwaggerURL:        d.SwaggerURL,
		DisabledByDefault: d.Disabled,
	}
	if ep.ComponentID == "" {
		ep.ComponentID = DefaultComponent
	}
	if ep.DefaultStatus == 0 {
		ep.DefaultStatus = fallbackStatus(ep.Responses)
	}

	seen := make(map[string]bool, len(d.Scenarios))
	for _, s := range d.Scenarios {
		if s.ID == "" {
			return ep, fmt.Errorf("endpoint %q: scenario without id", d.ID)
		}
		if seen[s.ID] {
			return ep, fmt.Errorf("endpoint %q: duplicate scenario id %q", d.ID, s.ID)
		}
		seen[s.ID] = true
		ep.Scenarios = append(ep.Scenarios, endpoint.Scenario{
			ID:        s.ID,
			Label:     s.Label,
			Responses: copyTable(s.Responses),
		})
	}

	if len(d.Transform) > 0 {
		if c.transforms == nil {
			return ep, fmt.Errorf("endpoint %q: transforms are not supported", d.ID)
		}
		fn, err := c.transforms.CompileTransform(d.ID, d.Transform)
		if err != nil {
			return ep, fmt.Errorf("endpoint %q: %w", d.ID, err)
		}
		ep.Transform = fn
	}

	policy, err := compilePolicy(d.Policy)
	if err != nil {
		return ep, fmt.Errorf("endpoint %q: %w", d.ID, err)
	}
	ep.Policy = policy

	return ep, nil
}

// CompileManifest converts the manifest's flags and scenarios.
func (c *Compiler) CompileManifest(m definition.Manifest) ([]platform.Flag, []platform.Scenario) {
	flags := make([]platform.Flag, 0, len(m.Flags))
	for _, f := range m.Flags {
		flags = append(flags, platform.Flag{Name: f.Name, Default: f.Default, Description: f.Description})
	}

	scenarios := make([]platform.Scenario, 0, len(m.Scenarios))
	for _, s := range m.Scenarios {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		scenarios = append(scenarios, platform.Scenario{
			ID:              s.ID,
			Name:            name,
			PluginIDs:       append([]string(nil), s.PluginIDs...),
			FlagOverrides:   s.FlagOverrides,
			StatusOverrides: s.StatusOverrides,
		})
	}
	return flags, scenarios
}

func compilePolicy(p *definition.Policy) (*endpoint.Policy, error) {
	if p == nil || (p.Latency == nil && p.RateLimit == nil) {
		return nil, nil
	}

	out := &endpoint.Policy{}
	if lat := p.Latency; lat != nil {
		if lat.FixedMs < 0 || lat.JitterMs < 0 {
			return nil, fmt.Errorf("latency must not be negative")
		}
		out.Latency = &endpoint.Latency{FixedMs: lat.FixedMs, JitterMs: lat.JitterMs}
	}
	if rl := p.RateLimit; rl != nil {
		if rl.Rate <= 0 {
			return nil, fmt.Errorf("rate_limit.rate must be positive")
		}
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		out.RateLimit = &endpoint.RateLimit{Rate: rl.Rate, Burst: burst, Key: rl.Key}
	}
	return out, nil
}

func fallbackStatus(table map[int]any) int {
	if _, ok := table[200]; ok || len(table) == 0 {
		return 200
	}
	lowest := 0
	for status := range table {
		if lowest == 0 || status < lowest {
			lowest = status
		}
	}
	return lowest
}

func copyTable(in map[int]any) map[int]any {
	if in == nil {
		return nil
	}
	out := make(map[int]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
