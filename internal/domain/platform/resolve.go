package platform

import "github.com/sophialabs/plugmock/internal/domain/endpoint"

// Resolution is the outcome of resolving a response for an endpoint.
type Resolution struct {
	EndpointID string
	// Status is the effective status, set even when nothing was found for it.
	Status  int
	Payload any
	Found   bool
	// ScenarioID is the endpoint scenario that supplied the payload, empty when
	// the endpoint's own table did.
	ScenarioID string
}

// GetResponse resolves the payload for an endpoint. A zero status selects the
// effective status (override, then default). The second result is false for
// unknown endpoints and for statuses with no response.
func (p *Platform) GetResponse(endpointID string, status int) (any, bool) {
	res := p.Resolve(endpointID, status)
	return res.Payload, res.Found
}

// Resolve applies the precedence rules:
//
//  1. unknown endpoint: not found
//  2. status: explicit, else the status override, else the default status
//  3. the selected endpoint scenario's entry for that status, else the endpoint's own entry
//  4. no entry: not found
//  5. the endpoint transform, applied to a copy of the payload with a snapshot of all flags
func (p *Platform) Resolve(endpointID string, status int) Resolution {
	res := Resolution{EndpointID: endpointID}

	ep, ok := p.registry.Lookup(endpointID)
	if !ok {
		return res
	}

	p.mu.RLock()
	if status == 0 {
		if override, ok := p.statuses[endpointID]; ok {
			status = override
		} else {
			status = ep.DefaultStatus
		}
	}
	selected, hasSelection := p.endpointScenarios[endpointID]
	var flags endpoint.FlagState
	if ep.Transform != nil {
		flags = p.flagSnapshotLocked()
	}
	p.mu.RUnlock()

	res.Status = status

	var payload any
	found := false
	if hasSelection {
		if sc, ok := ep.Scenario(selected); ok {
			payload, found = sc.Responses[status]
			if found {
				res.ScenarioID = sc.ID
			}
		}
	}
	if !found {
		payload, found = ep.Responses[status]
	}
	if !found {
		return res
	}

	payload = endpoint.Clone(payload)
	if ep.Transform != nil {
		payload = ep.Transform(payload, flags)
	}
	res.Payload = payload
	res.Found = true
	return res
}
