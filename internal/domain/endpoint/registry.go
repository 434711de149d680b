package endpoint

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateID indicates two endpoints were registered under the same id.
var ErrDuplicateID = errors.New("duplicate endpoint id")

// Registry is the immutable set of endpoints a platform was built from.
// Registration order is preserved.
type Registry struct {
	order []string
	byID  map[string]*PluggableEndpoint
}

// NewRegistry copies endpoints into a registry. Ids must be unique and non-empty.
func NewRegistry(endpoints []PluggableEndpoint) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(endpoints)),
		byID:  make(map[string]*PluggableEndpoint, len(endpoints)),
	}
	for i := range endpoints {
		ep := endpoints[i]
		if ep.ID == "" {
			return nil, fmt.Errorf("endpoint at index %d has an empty id", i)
		}
		if _, exists := r.byID[ep.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, ep.ID)
		}
		r.byID[ep.ID] = &ep
		r.order = append(r.order, ep.ID)
	}
	return r, nil
}

// Lookup returns the endpoint registered under id.
func (r *Registry) Lookup(id string) (*PluggableEndpoint, bool) {
	ep, ok := r.byID[id]
	return ep, ok
}

// IDs returns endpoint ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns endpoints in registration order.
func (r *Registry) All() []*PluggableEndpoint {
	all := make([]*PluggableEndpoint, 0, len(r.order))
	for _, id := range r.order {
		all = append(all, r.byID[id])
	}
	return all
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return len(r.order)
}

// ComponentIDs returns the distinct component ids in order of first appearance.
func (r *Registry) ComponentIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range r.order {
		c := r.byID[id].ComponentID
		if !seen[c] {
			seen[c] = true
			ids = append(ids, c)
		}
	}
	return ids
}

// ByComponentID groups endpoint ids by component id, each group in registration order.
func (r *Registry) ByComponentID() map[string][]string {
	groups := make(map[string][]string)
	for _, id := range r.order {
		c := r.byID[id].ComponentID
		groups[c] = append(groups[c], id)
	}
	return groups
}

func sortedStatuses(m map[int]any) []int {
	statuses := make([]int, 0, len(m))
	for s := range m {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)
	return statuses
}
