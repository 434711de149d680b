package platform

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by a Provider when no value is stored for a key.
var ErrNotFound = errors.New("value not found")

// Provider is the port for durable overlay state. It has four independent
// namespaces: flags by name, status overrides by endpoint id, a single active
// scenario id, and endpoint-scenario selections by endpoint id.
//
// Reads return ErrNotFound for absent keys. Writes are last-write-wins per key.
type Provider interface {
	Flag(name string) (bool, error)
	SetFlag(name string, value bool) error

	Status(endpointID string) (int, error)
	SetStatus(endpointID string, status int) error

	ActiveScenario() (string, error)
	SetActiveScenario(id string) error

	EndpointScenario(endpointID string) (string, error)
	SetEndpointScenario(endpointID, scenarioID string) error
}

// FlagLister is implemented by providers that can enumerate stored flags, so
// flags set at runtime without being declared survive a restart.
type FlagLister interface {
	FlagNames() ([]string, error)
}

// Resetter is implemented by providers that can drop every stored value.
type Resetter interface {
	Reset() error
}

var (
	_ Provider   = (*MemoryProvider)(nil)
	_ FlagLister = (*MemoryProvider)(nil)
	_ Resetter   = (*MemoryProvider)(nil)
)

// MemoryProvider keeps overlay state in process memory. State is lost when the
// process exits.
type MemoryProvider struct {
	mu                sync.RWMutex
	flags             map[string]bool
	statuses          map[string]int
	activeScenario    *string
	endpointScenarios map[string]string
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		flags:             make(map[string]bool),
		statuses:          make(map[string]int),
		endpointScenarios: make(map[string]string),
	}
}

func (m *MemoryProvider) Flag(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.flags[name]
	if !ok {
		return false, ErrNotFound
	}
	return v, nil
}

// Reset drops all stored state.
func (m *MemoryProvider) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = make(map[string]bool)
	m.statuses = make(map[string]int)
	m.activeScenario = nil
	m.endpointScenarios = make(map[string]string)
	return nil
}

// FlagNames returns the stored flag names, sorted.
func (m *MemoryProvider) FlagNames() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.flags), nil
}

func (m *MemoryProvider) SetFlag(name string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = value
	return nil
}

func (m *MemoryProvider) Status(endpointID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.statuses[endpointID]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (m *MemoryProvider) SetStatus(endpointID string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[endpointID] = status
	return nil
}

func (m *MemoryProvider) ActiveScenario() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeScenario == nil {
		return "", ErrNotFound
	}
	return *m.activeScenario, nil
}

func (m *MemoryProvider) SetActiveScenario(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeScenario = &id
	return nil
}

func (m *MemoryProvider) EndpointScenario(endpointID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.endpointScenarios[endpointID]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryProvider) SetEndpointScenario(endpointID, scenarioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpointScenarios[endpointID] = scenarioID
	return nil
}
