package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/plugmock/internal/domain/definition"
	"github.com/sophialabs/plugmock/internal/domain/trace"
	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/template"
	"github.com/sophialabs/plugmock/internal/infrastructure/services"
	"github.com/sophialabs/plugmock/internal/infrastructure/usecases"
	"github.com/sophialabs/plugmock/internal/testutil"
)

type catalogRepo struct {
	catalog *definition.Catalog
}

func (r catalogRepo) LoadAll(context.Context) (*definition.Catalog, error) {
	return r.catalog, nil
}

func newReloadableServer(t *testing.T) *Server {
	t.Helper()
	clk := &testutil.FixedClock{T: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	logger := &testutil.NoopLogger{}
	limiter := &testutil.StubRateLimiter{AllowAll: true}
	traces := trace.NewRingBuffer(10)

	repo := catalogRepo{catalog: &definition.Catalog{
		Manifest: definition.Manifest{Name: "shop"},
		Endpoints: []*definition.Endpoint{{
			ID:        "orders",
			Route:     "/api/orders",
			Method:    "GET",
			Responses: map[int]any{200: "ok", 503: "down"},
		}},
	}}

	loadUC := usecases.NewLoadEndpointsUseCase(repo, services.NewCompiler(template.NewRegistry(clk)), logger)
	handleReqUC := usecases.NewHandleRequestUseCase(clk, limiter, logger, traces)
	s := NewServer(handleReqUC, loadUC, nil, limiter, traces, clk, logger)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	return s
}

// A request routed by a build that a reload has since replaced must still
// change the platform serving traffic.
func TestAdmin_WritesFromRetiredBuildReachCurrentPlatform(t *testing.T) {
	s := newReloadableServer(t)
	retired := s.current.Load()

	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if s.Platform() == retired.platform {
		t.Fatal("expected reload to build a new platform")
	}

	writes := []struct{ method, path, body string }{
		{"POST", "/__admin/endpoints/orders/disable", ""},
		{"PUT", "/__admin/flags/RUNTIME", `{"value":true}`},
		{"PUT", "/__admin/endpoints/orders/status", `{"status":503}`},
	}
	for _, wr := range writes {
		w := httptest.NewRecorder()
		retired.router.ServeHTTP(w, httptest.NewRequest(wr.method, wr.path, strings.NewReader(wr.body)))
		if w.Code != 200 {
			t.Fatalf("%s %s: expected 200, got %d", wr.method, wr.path, w.Code)
		}
	}

	current := s.Platform()
	if !current.IsDisabled("orders") {
		t.Error("expected the disable to reach the current platform")
	}
	if !current.FeatureFlags()["RUNTIME"] {
		t.Error("expected the flag to reach the current platform")
	}
	if status, _ := current.StatusOverride("orders"); status != 503 {
		t.Errorf("expected status 503 on the current platform, got %d", status)
	}
	if retired.platform.IsDisabled("orders") {
		t.Error("expected the retired platform to be left alone")
	}

	// The disabled set is not persisted, so it only survives a further
	// rebuild if it was carried from the current platform.
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if !s.Platform().IsDisabled("orders") {
		t.Error("expected the disable to survive the next reload")
	}
}
