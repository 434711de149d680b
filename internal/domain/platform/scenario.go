package platform

import "sort"

// Scenario is a named bundle of flag and status overrides applied together.
type Scenario struct {
	ID   string
	Name string
	// PluginIDs lists the endpoints the scenario is about. It is informational only.
	PluginIDs       []string
	FlagOverrides   map[string]bool
	StatusOverrides map[string]int
}

// Flag declares a recognized feature flag.
type Flag struct {
	Name        string
	Default     bool
	Description string
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
