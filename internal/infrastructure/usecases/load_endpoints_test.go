package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sophialabs/plugmock/internal/domain/definition"
	"github.com/sophialabs/plugmock/internal/domain/endpoint"
	"github.com/sophialabs/plugmock/internal/infrastructure/services"
	"github.com/sophialabs/plugmock/internal/infrastructure/usecases"
	"github.com/sophialabs/plugmock/internal/testutil"
)

type mockRepo struct {
	catalog *definition.Catalog
	err     error
}

func (r *mockRepo) LoadAll(_ context.Context) (*definition.Catalog, error) {
	return r.catalog, r.err
}

func def(id, method, route string) *definition.Endpoint {
	return &definition.Endpoint{
		ID:        id,
		Method:    method,
		Route:     route,
		Responses: map[int]any{200: map[string]any{"id": id}},
	}
}

func newLoadUC(repo definition.Repository) *usecases.LoadEndpointsUseCase {
	return usecases.NewLoadEndpointsUseCase(repo, services.NewCompiler(nil), &testutil.NoopLogger{})
}

func TestLoadEndpointsUseCase_Success(t *testing.T) {
	repo := &mockRepo{catalog: &definition.Catalog{
		Manifest: definition.Manifest{
			Name:      "shop",
			Flags:     []definition.Flag{{Name: "ALT"}},
			Scenarios: []definition.Scenario{{ID: "outage", StatusOverrides: map[string]int{"orders": 500}}},
		},
		Endpoints: []*definition.Endpoint{
			def("orders", "GET", "/api/orders"),
			def("order", "GET", "/api/orders/:id"),
		},
	}}

	loaded, err := newLoadUC(repo).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if loaded.Name != "shop" {
		t.Errorf("expected name 'shop', got %q", loaded.Name)
	}
	if len(loaded.Endpoints) != 2 {
		t.Errorf("expected 2 endpoints, got %d", len(loaded.Endpoints))
	}
	if loaded.Routes.Len() != 2 {
		t.Errorf("expected 2 routes, got %d", loaded.Routes.Len())
	}
	if _, ok := loaded.Routes.Lookup(endpoint.MethodGet, "/api/orders/{id}"); !ok {
		t.Error("expected parameterized route")
	}
	if len(loaded.Flags) != 1 || len(loaded.Scenarios) != 1 {
		t.Errorf("expected manifest flags and scenarios, got %v %v", loaded.Flags, loaded.Scenarios)
	}

	p, err := loaded.NewPlatform(nil, nil)
	if err != nil {
		t.Fatalf("NewPlatform failed: %v", err)
	}
	if !p.ActivateScenario("outage") {
		t.Error("expected manifest scenario to be registered")
	}
	if status, _ := p.StatusOverride("orders"); status != 500 {
		t.Errorf("expected status 500 after activation, got %d", status)
	}
}

func TestLoadEndpointsUseCase_NameOverride(t *testing.T) {
	repo := &mockRepo{catalog: &definition.Catalog{Manifest: definition.Manifest{Name: "shop"}}}
	uc := newLoadUC(repo)
	uc.SetName("staging-shop")

	loaded, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if loaded.Name != "staging-shop" {
		t.Errorf("expected overridden name, got %q", loaded.Name)
	}
}

func TestLoadEndpointsUseCase_DuplicateID(t *testing.T) {
	repo := &mockRepo{catalog: &definition.Catalog{
		Manifest:  definition.Manifest{Name: "shop"},
		Endpoints: []*definition.Endpoint{def("a", "GET", "/a"), def("a", "POST", "/a")},
	}}

	_, err := newLoadUC(repo).Execute(context.Background())
	if !errors.Is(err, endpoint.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestLoadEndpointsUseCase_CompileErrorSkips(t *testing.T) {
	repo := &mockRepo{catalog: &definition.Catalog{
		Manifest: definition.Manifest{Name: "shop"},
		Endpoints: []*definition.Endpoint{
			def("good", "GET", "/good"),
			def("bad", "TRACE", "/bad"),
		},
	}}

	loaded, err := newLoadUC(repo).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(loaded.Endpoints) != 1 || loaded.Endpoints[0].ID != "good" {
		t.Errorf("expected only 'good', got %v", loaded.Endpoints)
	}
	if _, ok := loaded.Skipped["bad"]; !ok {
		t.Error("expected 'bad' to be reported as skipped")
	}
}

func TestLoadEndpointsUseCase_ShadowedRoute(t *testing.T) {
	repo := &mockRepo{catalog: &definition.Catalog{
		Manifest: definition.Manifest{Name: "shop"},
		Endpoints: []*definition.Endpoint{
			def("first", "GET", "/api/items"),
			def("second", "GET", "/api/items"),
		},
	}}

	loaded, err := newLoadUC(repo).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	route, ok := loaded.Routes.Lookup(endpoint.MethodGet, "/api/items")
	if !ok || route.EndpointID != "first" {
		t.Fatalf("expected first endpoint to own the route, got %+v", route)
	}
	if len(route.Shadowed) != 1 || route.Shadowed[0] != "second" {
		t.Errorf("expected 'second' to be shadowed, got %v", route.Shadowed)
	}
	if len(loaded.Endpoints) != 2 {
		t.Errorf("shadowed endpoints stay registered, got %d", len(loaded.Endpoints))
	}
}

func TestLoadEndpointsUseCase_RepoError(t *testing.T) {
	_, err := newLoadUC(&mockRepo{err: errors.New("disk failure")}).Execute(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}
