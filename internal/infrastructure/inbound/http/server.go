package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/domain/trace"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
	"github.com/sophialabs/plugmock/internal/infrastructure/services"
	"github.com/sophialabs/plugmock/internal/infrastructure/usecases"
)

// AdminPrefix is where the settings API is mounted. Mock routes may not use it.
const AdminPrefix = "/__admin"

// ErrResetUnsupported is returned by ResetState when the state backend cannot
// drop its values.
var ErrResetUnsupported = errors.New("state backend does not support reset")

// ProviderFactory returns the persistence provider for a platform name.
type ProviderFactory func(namespace string) (platform.Provider, error)

// ReadinessCheck reports whether a dependency of the server can be used.
type ReadinessCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// snapshot is one build of the definitions: the platform, its routes and the
// router serving them. Requests run against a single snapshot.
type snapshot struct {
	platform *platform.Platform
	loaded   *usecases.Loaded
	router   *chi.Mux
	builtAt  time.Time
}

// Server is the main HTTP server for plugmock.
type Server struct {
	current     atomic.Pointer[snapshot]
	rebuildMu   sync.Mutex
	handleReqUC *usecases.HandleRequestUseCase
	loadUC      *usecases.LoadEndpointsUseCase
	providers   ProviderFactory
	rateLimiter ports.RateLimiter
	traceBuf    *trace.RingBuffer
	logger      ports.Logger
	clock       ports.Clock

	upstream *url.URL
	proxies  sync.Map // target string -> *httputil.ReverseProxy

	checks []namedCheck
}

// NewServer creates a new Server. It serves 503 until the first Rebuild.
func NewServer(
	handleReqUC *usecases.HandleRequestUseCase,
	loadUC *usecases.LoadEndpointsUseCase,
	providers ProviderFactory,
	rateLimiter ports.RateLimiter,
	traceBuf *trace.RingBuffer,
	clock ports.Clock,
	logger ports.Logger,
) *Server {
	if providers == nil {
		providers = memoryProviders()
	}
	return &Server{
		handleReqUC: handleReqUC,
		loadUC:      loadUC,
		providers:   providers,
		rateLimiter: rateLimiter,
		traceBuf:    traceBuf,
		clock:       clock,
		logger:      logger,
	}
}

// memoryProviders returns in-memory providers, one per namespace, so state
// survives a rebuild.
func memoryProviders() ProviderFactory {
	var mu sync.Mutex
	cache := make(map[string]platform.Provider)
	return func(namespace string) (platform.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := cache[namespace]; ok {
			return p, nil
		}
		p := platform.NewMemoryProvider()
		cache[namespace] = p
		return p, nil
	}
}

// SetUpstream sets the passthrough destination for endpoints whose route is
// a plain path.
func (s *Server) SetUpstream(raw string) error {
	if raw == "" {
		s.upstream = nil
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream URL %q", raw)
	}
	s.upstream = u
	return nil
}

// AddReadinessCheck registers a check run by the readiness endpoint. Checks
// must be added before the server starts serving.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// Platform returns the platform currently serving requests.
func (s *Server) Platform() *platform.Platform {
	if snap := s.current.Load(); snap != nil {
		return snap.platform
	}
	return nil
}

// Reload loads and compiles the definitions again and swaps them in.
func (s *Server) Reload(ctx context.Context) error {
	if s.loadUC == nil {
		return errors.New("reload is not configured")
	}
	loaded, err := s.loadUC.Execute(ctx)
	if err != nil {
		return err
	}
	return s.Rebuild(loaded)
}

// Rebuild builds a platform over loaded and atomically swaps it in with a new
// router. Persisted overlay state is replayed by the platform itself. The
// disabled set is carried over from the previous platform for endpoints that
// still exist; endpoints new to this build start from their own default.
func (s *Server) Rebuild(loaded *usecases.Loaded) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	return s.rebuildLocked(loaded)
}

// ResetState drops the persisted overlay state of the current platform and
// rebuilds it, so flags, status overrides and scenario selections return to
// their defaults. The disabled set is kept.
func (s *Server) ResetState() error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	snap := s.current.Load()
	if snap == nil {
		return errors.New("server not ready")
	}
	resetter, ok := snap.platform.Provider().(platform.Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	if err := resetter.Reset(); err != nil {
		return fmt.Errorf("failed to reset state for %q: %w", snap.platform.Name(), err)
	}
	return s.rebuildLocked(snap.loaded)
}

func (s *Server) rebuildLocked(loaded *usecases.Loaded) error {
	provider, err := s.providers(loaded.Name)
	if err != nil {
		return fmt.Errorf("failed to open state for %q: %w", loaded.Name, err)
	}
	p, err := loaded.NewPlatform(provider, s.logger.With("platform", loaded.Name))
	if err != nil {
		return err
	}

	if prev := s.current.Load(); prev != nil && prev.platform.Name() == p.Name() {
		p.SetDisabledPluginIDs(carryDisabled(prev.platform, p))
	}

	snap := &snapshot{platform: p, loaded: loaded, builtAt: s.clock.Now()}
	snap.router = s.buildRouter(snap)
	s.current.Store(snap)
	if s.rateLimiter != nil {
		s.rateLimiter.Reset()
	}

	s.logger.Info("router rebuilt", "platform", p.Name(), "endpoints", len(p.Endpoints()), "routes", loaded.Routes.Len())
	return nil
}

func carryDisabled(prev, next *platform.Platform) []string {
	var ids []string
	for _, ep := range next.Endpoints() {
		if _, existed := prev.Endpoint(ep.ID); existed {
			if prev.IsDisabled(ep.ID) {
				ids = append(ids, ep.ID)
			}
			continue
		}
		if ep.DisabledByDefault {
			ids = append(ids, ep.ID)
		}
	}
	return ids
}

// ServeHTTP implements http.Handler using the current snapshot's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := s.current.Load()
	if snap == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	snap.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter(snap *snapshot) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route(AdminPrefix, func(r chi.Router) {
		s.adminRoutes(r, snap)
	})

	for _, route := range snap.loaded.Routes.Routes() {
		s.mountRoute(r, snap, route)
	}

	r.NotFound(s.notFoundHandler)
	r.MethodNotAllowed(s.notFoundHandler)

	return r
}

func (s *Server) mountRoute(r chi.Router, snap *snapshot, route *services.Route) {
	if route.Pattern == AdminPrefix || strings.HasPrefix(route.Pattern, AdminPrefix+"/") {
		s.logger.Warn("route collides with the settings API", "endpoint", route.EndpointID, "pattern", route.Pattern)
		return
	}
	// chi panics on patterns it cannot parse.
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Warn("failed to mount route", "endpoint", route.EndpointID, "pattern", route.Pattern, "error", rec)
		}
	}()
	r.Method(string(route.Method), route.Pattern, s.mockHandler(snap, route))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("request received (no route)", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	writeJSONStatus(w, http.StatusNotFound, map[string]any{
		"error":   "Not found",
		"method":  r.Method,
		"path":    r.URL.Path,
		"message": "No endpoint registered for this path",
	})
}

func (s *Server) mockHandler(snap *snapshot, route *services.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

		target := s.passthroughTarget(route)
		result := s.handleReqUC.Execute(r.Context(), snap.platform, route.EndpointID, usecases.Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Target:   target,
		})

		if result.Passthrough() {
			s.logger.Info("request passed through", "endpoint", route.EndpointID, "target", target)
			s.proxy(target).ServeHTTP(w, r)
			return
		}

		status := result.Status
		if status < 100 || status > 999 {
			s.logger.Warn("resolved status is not a valid HTTP status", "endpoint", route.EndpointID, "status", status)
			status = http.StatusInternalServerError
		}
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		writeJSONStatus(w, status, result.Payload)

		s.logger.Info("request answered", "endpoint", route.EndpointID, "outcome", result.Outcome, "status", result.Status)
	}
}

// passthroughTarget is the route's own origin, else the configured upstream.
func (s *Server) passthroughTarget(route *services.Route) string {
	if route.Origin != "" {
		return route.Origin
	}
	if s.upstream != nil {
		return s.upstream.String()
	}
	return ""
}

func (s *Server) proxy(target string) *httputil.ReverseProxy {
	if p, ok := s.proxies.Load(target); ok {
		return p.(*httputil.ReverseProxy)
	}

	u, _ := url.Parse(target)
	p := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("passthrough failed", "target", target, "path", r.URL.Path, "error", err)
			writeJSONStatus(w, http.StatusBadGateway, map[string]string{
				"error":   "passthrough_failed",
				"message": err.Error(),
			})
		},
	}
	actual, _ := s.proxies.LoadOrStore(target, p)
	return actual.(*httputil.ReverseProxy)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
