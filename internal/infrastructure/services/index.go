package services

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
)

// Route is one method and path pattern served by the mock router.
type Route struct {
	Method endpoint.Method
	// Pattern is the chi path pattern.
	Pattern    string
	EndpointID string
	// Origin is scheme://host for endpoints declared with an absolute URL.
	Origin string
	// Shadowed lists later endpoints declared on the same method and pattern.
	// They stay reachable through the settings API but never receive traffic.
	Shadowed []string
}

// RouteIndex maps METHOD:pattern keys to the endpoint that serves them.
// The first endpoint added for a key wins.
type RouteIndex struct {
	entries map[string]*Route
	keys    []string
}

// NewRouteIndex creates an empty index.
func NewRouteIndex() *RouteIndex {
	return &RouteIndex{entries: make(map[string]*Route)}
}

// Add registers an endpoint's route.
func (idx *RouteIndex) Add(ep *endpoint.PluggableEndpoint) error {
	pattern, origin, err := ChiPattern(ep.Route)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", ep.ID, err)
	}

	key := string(ep.Method) + ":" + pattern
	if existing, ok := idx.entries[key]; ok {
		existing.Shadowed = append(existing.Shadowed, ep.ID)
		return nil
	}
	idx.entries[key] = &Route{
		Method:     ep.Method,
		Pattern:    pattern,
		EndpointID: ep.ID,
		Origin:     origin,
	}
	idx.keys = append(idx.keys, key)
	return nil
}

// Routes returns every route ordered by pattern then method.
func (idx *RouteIndex) Routes() []*Route {
	routes := make([]*Route, 0, len(idx.entries))
	for _, key := range idx.keys {
		routes = append(routes, idx.entries[key])
	}
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Pattern != routes[j].Pattern {
			return routes[i].Pattern < routes[j].Pattern
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// Lookup returns the route for a method and chi pattern.
func (idx *RouteIndex) Lookup(method endpoint.Method, pattern string) (*Route, bool) {
	r, ok := idx.entries[string(method)+":"+pattern]
	return r, ok
}

// ForEndpoint returns the route served by an endpoint.
func (idx *RouteIndex) ForEndpoint(endpointID string) (*Route, bool) {
	for _, key := range idx.keys {
		if r := idx.entries[key]; r.EndpointID == endpointID {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of routes.
func (idx *RouteIndex) Len() int { return len(idx.entries) }

// ChiPattern converts an endpoint route into a chi pattern. ":name" segments
// become "{name}". Absolute URLs are routed by path and their origin returned.
func ChiPattern(route string) (pattern, origin string, err error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return "", "", fmt.Errorf("empty route")
	}

	path := route
	if strings.Contains(route, "://") {
		u, err := url.Parse(route)
		if err != nil {
			return "", "", fmt.Errorf("invalid route URL %q: %w", route, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return "", "", fmt.Errorf("invalid route URL %q", route)
		}
		origin = u.Scheme + "://" + u.Host
		path = u.EscapedPath()
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			segments[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segments, "/"), origin, nil
}
