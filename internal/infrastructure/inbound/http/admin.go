package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
)

const maxBodySize = 1 << 20 // 1 MB

const readinessTimeout = 2 * time.Second

// adminRoutes registers the settings API. Reads are answered from snap, the
// build that routed the request. Writes go to the platform currently serving,
// so a change made while definitions reload is not lost with the old build.
func (s *Server) adminRoutes(r chi.Router, snap *snapshot) {
	a := &admin{server: s, snap: snap}

	r.Get("/health", a.health)
	r.Get("/readiness", a.readiness)
	r.Delete("/state", a.resetState)
	r.Get("/platform", a.platformInfo)
	r.Get("/components", a.components)

	r.Get("/endpoints", a.listEndpoints)
	r.Route("/endpoints/{endpointID}", func(r chi.Router) {
		r.Get("/", a.getEndpoint)
		r.Get("/definition", a.getDefinition)
		r.Get("/preview", a.preview)
		r.Put("/status", a.setStatus)
		r.Delete("/status", a.resetStatus)
		r.Put("/scenario", a.setEndpointScenario)
		r.Delete("/scenario", a.clearEndpointScenario)
		r.Post("/disable", a.disable)
		r.Post("/enable", a.enable)
		r.Get("/trace", a.endpointTrace)
	})

	r.Get("/flags", a.listFlags)
	r.Put("/flags/{name}", a.setFlag)

	r.Get("/scenarios", a.listScenarios)
	r.Post("/scenarios/{scenarioID}/activate", a.activateScenario)

	r.Get("/disabled", a.listDisabled)
	r.Put("/disabled", a.replaceDisabled)

	r.Get("/trace", a.trace)
	r.Delete("/trace", a.resetTrace)

	r.Get("/ratelimits", a.listRateLimits)
	r.Delete("/ratelimits", a.resetRateLimits)

	r.Post("/reload", a.reload)
}

type admin struct {
	server *Server
	snap   *snapshot
}

func (a *admin) p() *platform.Platform { return a.snap.platform }

// write runs fn on the platform currently serving requests. Rebuilds are held
// off meanwhile, so the change either reaches the provider before the next
// platform replays it or lands on that platform directly.
func (a *admin) write(fn func(p *platform.Platform)) *platform.Platform {
	a.server.rebuildMu.Lock()
	defer a.server.rebuildMu.Unlock()
	p := a.server.Platform()
	fn(p)
	return p
}

type scenarioRef struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

type policyView struct {
	LatencyFixedMs  int     `json:"latency_fixed_ms,omitempty"`
	LatencyJitterMs int     `json:"latency_jitter_ms,omitempty"`
	Rate            float64 `json:"rate,omitempty"`
	Burst           int     `json:"burst,omitempty"`
	RateKey         string  `json:"rate_key,omitempty"`
}

type endpointView struct {
	ID            string        `json:"id"`
	Component     string        `json:"component"`
	Method        string        `json:"method"`
	Route         string        `json:"route"`
	Pattern       string        `json:"pattern,omitempty"`
	ShadowedBy    string        `json:"shadowed_by,omitempty"`
	DefaultStatus int           `json:"default_status"`
	Status        int           `json:"status"`
	Statuses      []int         `json:"statuses"`
	Scenario      string        `json:"scenario,omitempty"`
	Scenarios     []scenarioRef `json:"scenarios,omitempty"`
	Flags         []string      `json:"flags,omitempty"`
	QueryKeys     []string      `json:"query_keys,omitempty"`
	Disabled      bool          `json:"disabled"`
	SwaggerURL    string        `json:"swagger_url,omitempty"`
	Policy        *policyView   `json:"policy,omitempty"`
	HasTransform  bool          `json:"has_transform"`
	// Responses is only filled for a single endpoint.
	Responses map[int]any `json:"responses,omitempty"`
}

func (a *admin) view(p *platform.Platform, ep *endpoint.PluggableEndpoint) endpointView {
	v := endpointView{
		ID:            ep.ID,
		Component:     ep.ComponentID,
		Method:        string(ep.Method),
		Route:         ep.Route,
		DefaultStatus: ep.DefaultStatus,
		Statuses:      ep.Statuses(),
		Flags:         ep.Flags,
		Disabled:      p.IsDisabled(ep.ID),
		SwaggerURL:    ep.SwaggerURL,
		HasTransform:  ep.Transform != nil,
	}
	v.Status, _ = p.StatusOverride(ep.ID)
	v.Scenario, _ = p.EndpointScenario(ep.ID)

	if route, ok := a.snap.loaded.Routes.ForEndpoint(ep.ID); ok {
		v.Pattern = route.Pattern
	} else {
		for _, route := range a.snap.loaded.Routes.Routes() {
			for _, id := range route.Shadowed {
				if id == ep.ID {
					v.ShadowedBy = route.EndpointID
				}
			}
		}
	}

	for _, sc := range ep.Scenarios {
		v.Scenarios = append(v.Scenarios, scenarioRef{ID: sc.ID, Label: sc.Label})
	}
	for key := range ep.QueryResponses {
		v.QueryKeys = append(v.QueryKeys, key)
	}
	sort.Strings(v.QueryKeys)

	if pol := ep.Policy; pol != nil {
		v.Policy = &policyView{}
		if pol.Latency != nil {
			v.Policy.LatencyFixedMs = pol.Latency.FixedMs
			v.Policy.LatencyJitterMs = pol.Latency.JitterMs
		}
		if pol.RateLimit != nil {
			v.Policy.Rate = pol.RateLimit.Rate
			v.Policy.Burst = pol.RateLimit.Burst
			v.Policy.RateKey = pol.RateLimit.Key
		}
	}
	return v
}

func (a *admin) endpoint(w http.ResponseWriter, r *http.Request) (*endpoint.PluggableEndpoint, bool) {
	id := chi.URLParam(r, "endpointID")
	ep, ok := a.p().Endpoint(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "endpoint not found: "+id)
		return nil, false
	}
	return ep, true
}

func (a *admin) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// readiness runs the registered checks. The first failure answers 503.
func (a *admin) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	for _, c := range a.server.checks {
		if err := c.check(ctx); err != nil {
			a.server.logger.Warn("readiness check failed", "check", c.name, "error", err)
			writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"check":  c.name,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

func (a *admin) resetState(w http.ResponseWriter, _ *http.Request) {
	err := a.server.ResetState()
	switch {
	case errors.Is(err, ErrResetUnsupported):
		writeError(w, http.StatusNotImplemented, "not_supported", err.Error())
		return
	case err != nil:
		a.server.logger.Error("state reset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reset_failed", "state reset failed, check server logs")
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "message": "state reset to defaults"})
}

func (a *admin) platformInfo(w http.ResponseWriter, _ *http.Request) {
	p := a.p()
	active, _ := p.ActiveScenario()
	writeJSON(w, map[string]any{
		"name":            p.Name(),
		"endpoints":       len(p.Endpoints()),
		"routes":          a.snap.loaded.Routes.Len(),
		"components":      p.ComponentIDs(),
		"flags":           p.FeatureFlags(),
		"active_scenario": active,
		"disabled":        p.DisabledPluginIDs(),
		"skipped":         a.snap.loaded.Skipped,
		"loaded_at":       a.snap.builtAt,
	})
}

func (a *admin) components(w http.ResponseWriter, _ *http.Request) {
	groups := make(map[string][]string)
	for component, eps := range a.p().PluginsByComponentID() {
		for _, ep := range eps {
			groups[component] = append(groups[component], ep.ID)
		}
	}
	writeJSON(w, groups)
}

func (a *admin) listEndpoints(w http.ResponseWriter, r *http.Request) {
	component := r.URL.Query().Get("component")
	views := make([]endpointView, 0, len(a.p().Endpoints()))
	for _, ep := range a.p().Endpoints() {
		if component != "" && ep.ComponentID != component {
			continue
		}
		views = append(views, a.view(a.p(), ep))
	}
	writeJSON(w, views)
}

func (a *admin) getEndpoint(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	v := a.view(a.p(), ep)
	v.Responses, _ = endpoint.Clone(ep.Responses).(map[int]any)
	writeJSON(w, v)
}

func (a *admin) getDefinition(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	d, err := a.snap.loaded.Catalog.Endpoint(ep.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, d)
}

// preview resolves without running adapter policies or recording a trace.
func (a *admin) preview(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	status := 0
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be an integer")
			return
		}
		status = parsed
	}

	res := a.p().Resolve(ep.ID, status)
	writeJSON(w, map[string]any{
		"endpoint_id": res.EndpointID,
		"status":      res.Status,
		"found":       res.Found,
		"scenario_id": res.ScenarioID,
		"payload":     res.Payload,
	})
}

func (a *admin) setStatus(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	var body struct {
		Status int `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Status <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be positive")
		return
	}
	p := a.write(func(p *platform.Platform) { p.SetStatusOverride(ep.ID, body.Status) })
	writeJSON(w, a.view(p, ep))
}

func (a *admin) resetStatus(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	p := a.write(func(p *platform.Platform) { p.SetStatusOverride(ep.ID, ep.DefaultStatus) })
	writeJSON(w, a.view(p, ep))
}

func (a *admin) setEndpointScenario(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	var body struct {
		Scenario string `json:"scenario"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	p := a.write(func(p *platform.Platform) { p.SetEndpointScenario(ep.ID, body.Scenario) })
	writeJSON(w, a.view(p, ep))
}

func (a *admin) clearEndpointScenario(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	p := a.write(func(p *platform.Platform) { p.SetEndpointScenario(ep.ID, "") })
	writeJSON(w, a.view(p, ep))
}

func (a *admin) disable(w http.ResponseWriter, r *http.Request) {
	a.toggle(w, r, true)
}

func (a *admin) enable(w http.ResponseWriter, r *http.Request) {
	a.toggle(w, r, false)
}

func (a *admin) toggle(w http.ResponseWriter, r *http.Request, disabled bool) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	p := a.write(func(p *platform.Platform) {
		ids := make([]string, 0)
		for _, id := range p.DisabledPluginIDs() {
			if id != ep.ID {
				ids = append(ids, id)
			}
		}
		if disabled {
			ids = append(ids, ep.ID)
		}
		p.SetDisabledPluginIDs(ids)
	})
	writeJSON(w, a.view(p, ep))
}

func (a *admin) endpointTrace(w http.ResponseWriter, r *http.Request) {
	ep, ok := a.endpoint(w, r)
	if !ok {
		return
	}
	writeJSON(w, a.server.traceBuf.ForEndpoint(ep.ID, lastParam(r)))
}

type flagView struct {
	Name        string `json:"name"`
	Value       bool   `json:"value"`
	Declared    bool   `json:"declared"`
	Default     bool   `json:"default"`
	Description string `json:"description,omitempty"`
}

func (a *admin) listFlags(w http.ResponseWriter, _ *http.Request) {
	p := a.p()
	values := p.FeatureFlags()
	seen := make(map[string]bool, len(values))

	views := make([]flagView, 0, len(values))
	for _, f := range p.DeclaredFlags() {
		seen[f.Name] = true
		views = append(views, flagView{
			Name:        f.Name,
			Value:       values[f.Name],
			Declared:    true,
			Default:     f.Default,
			Description: f.Description,
		})
	}

	var extra []string
	for name := range values {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		views = append(views, flagView{Name: name, Value: values[name]})
	}

	writeJSON(w, views)
}

func (a *admin) setFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body struct {
		Value *bool `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "value is required")
		return
	}
	a.write(func(p *platform.Platform) { p.SetFeatureFlag(name, *body.Value) })
	writeJSON(w, map[string]any{"name": name, "value": *body.Value})
}

type scenarioView struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Active          bool            `json:"active"`
	PluginIDs       []string        `json:"plugin_ids,omitempty"`
	FlagOverrides   map[string]bool `json:"flag_overrides,omitempty"`
	StatusOverrides map[string]int  `json:"status_overrides,omitempty"`
}

func (a *admin) listScenarios(w http.ResponseWriter, _ *http.Request) {
	p := a.p()
	active, hasActive := p.ActiveScenario()

	scenarios := p.Scenarios()
	views := make([]scenarioView, 0, len(scenarios))
	for _, sc := range scenarios {
		views = append(views, scenarioView{
			ID:              sc.ID,
			Name:            sc.Name,
			Active:          hasActive && sc.ID == active,
			PluginIDs:       sc.PluginIDs,
			FlagOverrides:   sc.FlagOverrides,
			StatusOverrides: sc.StatusOverrides,
		})
	}
	writeJSON(w, views)
}

func (a *admin) activateScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioID")
	var activated bool
	p := a.write(func(p *platform.Platform) { activated = p.ActivateScenario(id) })
	if !activated {
		writeError(w, http.StatusNotFound, "not_found", "scenario not found: "+id)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "active_scenario": id, "flags": p.FeatureFlags()})
}

func (a *admin) listDisabled(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.p().DisabledPluginIDs())
}

func (a *admin) replaceDisabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	p := a.write(func(p *platform.Platform) { p.SetDisabledPluginIDs(body.IDs) })
	writeJSON(w, p.DisabledPluginIDs())
}

func (a *admin) trace(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("endpoint"); id != "" {
		writeJSON(w, a.server.traceBuf.ForEndpoint(id, lastParam(r)))
		return
	}
	writeJSON(w, a.server.traceBuf.Last(lastParam(r)))
}

func (a *admin) resetTrace(w http.ResponseWriter, _ *http.Request) {
	a.server.traceBuf.Reset()
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *admin) listRateLimits(w http.ResponseWriter, _ *http.Request) {
	inspector, ok := a.server.rateLimiter.(ports.RateLimitInspector)
	if !ok {
		writeJSON(w, []ports.Bucket{})
		return
	}
	writeJSON(w, inspector.Buckets())
}

func (a *admin) resetRateLimits(w http.ResponseWriter, _ *http.Request) {
	if a.server.rateLimiter != nil {
		a.server.rateLimiter.Reset()
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *admin) reload(w http.ResponseWriter, r *http.Request) {
	if err := a.server.Reload(r.Context()); err != nil {
		a.server.logger.Error("reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload_failed", "definition reload failed, check server logs")
		return
	}
	writeJSON(w, map[string]string{
		"status":  "ok",
		"message": "definitions reloaded",
	})
}

// lastParam reads ?last=N, defaulting to 10.
func lastParam(r *http.Request) int {
	n := 10
	if raw := r.URL.Query().Get("last"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSONStatus(w, status, map[string]string{"error": code, "message": message})
}
