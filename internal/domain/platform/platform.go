// Package platform holds the mock platform core: overlay state (flags, status
// overrides, scenarios, endpoint-scenario selections, disabled endpoints) on top
// of an immutable endpoint registry, and the resolution algorithm that picks a
// response for a request.
//
// A Platform is meant to be shared. A settings surface and the request adapter
// hold the same instance and observe each other's writes immediately; there is
// no change notification, callers re-read after mutating.
package platform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
)

// ErrMissingName is returned when a platform is built without a name. The name
// namespaces persisted state, so an empty one would collide with other platforms.
var ErrMissingName = errors.New("platform name is required")

// Logger receives persistence failures. ports.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Options configures a Platform.
type Options struct {
	Name      string
	Endpoints []endpoint.PluggableEndpoint
	Flags     []Flag
	// Scenarios are registered in order after construction.
	Scenarios []Scenario
	// Provider defaults to a fresh MemoryProvider namespaced by Name.
	Provider Provider
	Logger   Logger
}

// Platform is the mock platform core.
type Platform struct {
	name     string
	registry *endpoint.Registry
	declared []Flag
	provider Provider
	logger   Logger

	mu                sync.RWMutex
	flags             map[string]bool
	statuses          map[string]int
	endpointScenarios map[string]string
	scenarios         []Scenario
	activeScenario    string
	hasActive         bool
	disabled          map[string]bool
}

// New builds a platform and replays persisted overlay state. Absent values fall
// back to declared flag defaults, each endpoint's default status, and no
// scenario selection. Endpoints marked DisabledByDefault start disabled.
//
// Persisted flags are replayed for declared flags, flags an endpoint depends
// on, flags a scenario overrides and, when the provider is a FlagLister, every
// flag it has stored. Undeclared flags with no stored value stay unset.
func New(opts Options) (*Platform, error) {
	if opts.Name == "" {
		return nil, ErrMissingName
	}
	registry, err := endpoint.NewRegistry(opts.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint registry: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		provider = NewMemoryProvider()
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	p := &Platform{
		name:              opts.Name,
		registry:          registry,
		declared:          append([]Flag(nil), opts.Flags...),
		provider:          provider,
		logger:            logger,
		flags:             make(map[string]bool, len(opts.Flags)),
		statuses:          make(map[string]int, registry.Len()),
		endpointScenarios: make(map[string]string),
		disabled:          make(map[string]bool),
		scenarios:         append([]Scenario(nil), opts.Scenarios...),
	}
	p.load()
	return p, nil
}

func (p *Platform) load() {
	for _, f := range p.declared {
		v, err := p.provider.Flag(f.Name)
		if err != nil {
			p.readFailed("flag", f.Name, err)
			v = f.Default
		}
		p.flags[f.Name] = v
	}
	for _, name := range p.referencedFlags() {
		p.replayFlagLocked(name)
	}

	for _, ep := range p.registry.All() {
		status, err := p.provider.Status(ep.ID)
		if err != nil {
			p.readFailed("status", ep.ID, err)
			status = ep.DefaultStatus
		}
		p.statuses[ep.ID] = status

		scenarioID, err := p.provider.EndpointScenario(ep.ID)
		if err == nil {
			p.endpointScenarios[ep.ID] = scenarioID
		} else {
			p.readFailed("endpoint_scenario", ep.ID, err)
		}

		if ep.DisabledByDefault {
			p.disabled[ep.ID] = true
		}
	}

	if id, err := p.provider.ActiveScenario(); err == nil {
		p.activeScenario, p.hasActive = id, true
	} else {
		p.readFailed("active_scenario", "", err)
	}
}

// referencedFlags returns the undeclared flag names the platform knows of,
// sorted and without duplicates.
func (p *Platform) referencedFlags() []string {
	names := make(map[string]bool)
	for _, ep := range p.registry.All() {
		for _, name := range ep.Flags {
			names[name] = true
		}
	}
	for _, sc := range p.scenarios {
		for name := range sc.FlagOverrides {
			names[name] = true
		}
	}
	if lister, ok := p.provider.(FlagLister); ok {
		stored, err := lister.FlagNames()
		if err != nil {
			p.readFailed("flag", "", err)
		}
		for _, name := range stored {
			names[name] = true
		}
	}
	for _, f := range p.declared {
		delete(names, f.Name)
	}
	return sortedKeys(names)
}

// replayFlagLocked loads a stored value for a flag not yet known.
func (p *Platform) replayFlagLocked(name string) {
	if _, known := p.flags[name]; known {
		return
	}
	v, err := p.provider.Flag(name)
	if err != nil {
		p.readFailed("flag", name, err)
		return
	}
	p.flags[name] = v
}

func (p *Platform) readFailed(kind, key string, err error) {
	if errors.Is(err, ErrNotFound) {
		return
	}
	p.logger.Warn("failed to read persisted state", "platform", p.name, "kind", kind, "key", key, "error", err)
}

func (p *Platform) writeFailed(kind, key string, err error) {
	if err != nil {
		p.logger.Warn("failed to persist state", "platform", p.name, "kind", kind, "key", key, "error", err)
	}
}

// Name returns the platform name.
func (p *Platform) Name() string { return p.name }

// Provider returns the persistence provider backing the platform.
func (p *Platform) Provider() Provider { return p.provider }

// Endpoint returns the registered endpoint with the given id. The returned
// value is shared and must not be modified.
func (p *Platform) Endpoint(id string) (*endpoint.PluggableEndpoint, bool) {
	return p.registry.Lookup(id)
}

// Endpoints returns all registered endpoints in registration order.
func (p *Platform) Endpoints() []*endpoint.PluggableEndpoint {
	return p.registry.All()
}

// DeclaredFlags returns the flags the platform was built with.
func (p *Platform) DeclaredFlags() []Flag {
	return append([]Flag(nil), p.declared...)
}

// SetFeatureFlag records and persists a flag value. Undeclared names are accepted.
func (p *Platform) SetFeatureFlag(name string, value bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setFeatureFlagLocked(name, value)
}

func (p *Platform) setFeatureFlagLocked(name string, value bool) {
	p.flags[name] = value
	p.writeFailed("flag", name, p.provider.SetFlag(name, value))
}

// FeatureFlags returns a snapshot of every known flag.
func (p *Platform) FeatureFlags() endpoint.FlagState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flagSnapshotLocked()
}

func (p *Platform) flagSnapshotLocked() endpoint.FlagState {
	snapshot := make(endpoint.FlagState, len(p.flags))
	for k, v := range p.flags {
		snapshot[k] = v
	}
	return snapshot
}

// SetStatusOverride forces the status used for an endpoint. The status is not
// checked against the response table.
func (p *Platform) SetStatusOverride(endpointID string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStatusOverrideLocked(endpointID, status)
}

func (p *Platform) setStatusOverrideLocked(endpointID string, status int) {
	p.statuses[endpointID] = status
	p.writeFailed("status", endpointID, p.provider.SetStatus(endpointID, status))
}

// StatusOverride returns the current status for an endpoint. Registered
// endpoints always have one, seeded from their default status.
func (p *Platform) StatusOverride(endpointID string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.statuses[endpointID]
	return s, ok
}

// SetEndpointScenario selects an endpoint scenario. Ids unknown to the endpoint
// are stored as-is and simply never match during resolution.
func (p *Platform) SetEndpointScenario(endpointID, scenarioID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpointScenarios[endpointID] = scenarioID
	p.writeFailed("endpoint_scenario", endpointID, p.provider.SetEndpointScenario(endpointID, scenarioID))
}

// EndpointScenario returns the selected endpoint scenario id.
func (p *Platform) EndpointScenario(endpointID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.endpointScenarios[endpointID]
	return id, ok
}

// RegisterScenario appends a platform scenario. Scenarios are not persisted,
// but stored values of the flags it overrides are replayed.
func (p *Platform) RegisterScenario(sc Scenario) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scenarios = append(p.scenarios, sc)
	for _, name := range sortedKeys(sc.FlagOverrides) {
		p.replayFlagLocked(name)
	}
}

// Scenarios returns the registered scenarios in registration order.
func (p *Platform) Scenarios() []Scenario {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Scenario(nil), p.scenarios...)
}

// ActivateScenario applies every flag and status override of the scenario with
// the given id and marks it active. Unknown ids leave all state untouched.
// It reports whether a scenario was activated.
func (p *Platform) ActivateScenario(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sc *Scenario
	for i := range p.scenarios {
		if p.scenarios[i].ID == id {
			sc = &p.scenarios[i]
			break
		}
	}
	if sc == nil {
		return false
	}

	for _, name := range sortedKeys(sc.FlagOverrides) {
		p.setFeatureFlagLocked(name, sc.FlagOverrides[name])
	}
	for _, endpointID := range sortedKeys(sc.StatusOverrides) {
		p.setStatusOverrideLocked(endpointID, sc.StatusOverrides[endpointID])
	}
	p.activeScenario, p.hasActive = id, true
	p.writeFailed("active_scenario", id, p.provider.SetActiveScenario(id))
	return true
}

// ActiveScenario returns the id of the last activated scenario.
func (p *Platform) ActiveScenario() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeScenario, p.hasActive
}

// SetDisabledPluginIDs replaces the set of endpoints in passthrough mode.
// The set is owned by the caller and is not persisted.
func (p *Platform) SetDisabledPluginIDs(ids []string) {
	disabled := make(map[string]bool, len(ids))
	for _, id := range ids {
		disabled[id] = true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = disabled
}

// DisabledPluginIDs returns the passthrough set, sorted.
func (p *Platform) DisabledPluginIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.disabled))
	for id := range p.disabled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsDisabled reports whether the endpoint is in passthrough mode.
func (p *Platform) IsDisabled(endpointID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disabled[endpointID]
}

// ComponentIDs returns the distinct component ids of the registry.
func (p *Platform) ComponentIDs() []string {
	return p.registry.ComponentIDs()
}

// PluginsByComponentID groups registered endpoints by component id.
func (p *Platform) PluginsByComponentID() map[string][]*endpoint.PluggableEndpoint {
	groups := make(map[string][]*endpoint.PluggableEndpoint)
	for component, ids := range p.registry.ByComponentID() {
		for _, id := range ids {
			ep, _ := p.registry.Lookup(id)
			groups[component] = append(groups[component], ep)
		}
	}
	return groups
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}
