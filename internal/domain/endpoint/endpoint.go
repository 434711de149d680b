package endpoint

import "strings"

// Method is the HTTP method an endpoint answers.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ParseMethod normalizes s and reports whether it is one of the supported methods.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, true
	}
	return "", false
}

// FlagState is a snapshot of feature flag values keyed by flag name.
type FlagState map[string]bool

// Transform rewrites a payload according to the current flag state.
// It receives its own copy of the payload and must not retain it.
type Transform func(payload any, flags FlagState) any

// PluggableEndpoint is one mockable request target.
type PluggableEndpoint struct {
	ID          string
	ComponentID string
	Route       string
	Method      Method

	// Responses maps HTTP status codes to opaque payloads.
	Responses     map[int]any
	DefaultStatus int

	Flags     []string
	Transform Transform
	Scenarios []Scenario

	// QueryResponses maps a literal raw query string (without "?") to a payload
	// that bypasses normal resolution.
	QueryResponses map[string]any

	SwaggerURL        string
	DisabledByDefault bool
	Policy            *Policy
}

// Scenario is a named alternate response table scoped to a single endpoint.
// Only the statuses it defines overlay the endpoint's own table.
type Scenario struct {
	ID        string
	Label     string
	Responses map[int]any
}

// Scenario returns the endpoint scenario with the given id.
func (e *PluggableEndpoint) Scenario(id string) (Scenario, bool) {
	for _, s := range e.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// Statuses returns the status codes present in the endpoint's own table, ascending.
func (e *PluggableEndpoint) Statuses() []int {
	return sortedStatuses(e.Responses)
}

// Policy groups adapter-level behaviors applied before a mock is served.
type Policy struct {
	Latency   *Latency
	RateLimit *RateLimit
}

// Latency configures response delay simulation.
type Latency struct {
	FixedMs  int
	JitterMs int
}

// RateLimit configures token-bucket rate limiting. An empty Key means the endpoint id.
type RateLimit struct {
	Rate  float64
	Burst int
	Key   string
}
