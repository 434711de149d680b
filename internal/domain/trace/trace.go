package trace

import "time"

// Outcome is the decision the request adapter took for a request.
type Outcome string

const (
	OutcomeMocked      Outcome = "mocked"
	OutcomeQuery       Outcome = "query"
	OutcomeNotFound    Outcome = "not_found"
	OutcomePassthrough Outcome = "passthrough"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Entry records one resolved request.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Query      string    `json:"query,omitempty"`
	EndpointID string    `json:"endpoint_id"`
	Outcome    Outcome   `json:"outcome"`
	Status     int       `json:"status"`
	// ScenarioID is the endpoint scenario that supplied the payload.
	ScenarioID string `json:"scenario_id,omitempty"`
	// ActiveScenario is the platform scenario active at resolution time.
	ActiveScenario string `json:"active_scenario,omitempty"`
	Target         string `json:"target,omitempty"`
}
