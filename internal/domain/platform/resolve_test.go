package platform_test

import (
	"reflect"
	"testing"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
	"github.com/sophialabs/plugmock/internal/domain/platform"
)

func message(t *testing.T, payload any) string {
	t.Helper()
	m, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", payload)
	}
	s, _ := m["message"].(string)
	return s
}

func TestGetResponse_ExampleFlow(t *testing.T) {
	p := newPlatform(t, platform.Options{
		Name:      "example-platform",
		Endpoints: []endpoint.PluggableEndpoint{exampleEndpoint()},
		Flags:     []platform.Flag{{Name: "ALT"}},
	})

	payload, ok := p.GetResponse("example", 0)
	if !ok {
		t.Fatal("expected response")
	}
	if got := message(t, payload); got != "Hello from 200" {
		t.Errorf("expected plain message, got %q", got)
	}

	p.SetFeatureFlag("ALT", true)
	payload, _ = p.GetResponse("example", 0)
	if got := message(t, payload); got != "[ALT MODE] Hello from 200" {
		t.Errorf("expected ALT message, got %q", got)
	}

	p.SetStatusOverride("example", 400)
	payload, _ = p.GetResponse("example", 0)
	if got := message(t, payload); got != "[ALT MODE] Bad request" {
		t.Errorf("expected ALT bad request, got %q", got)
	}

	if _, ok := p.GetResponse("example", 999); ok {
		t.Error("expected not found for status 999")
	}
}

func TestGetResponse_StoredPayloadPerStatus(t *testing.T) {
	p := newPlatform(t, platform.Options{})

	for _, tt := range []struct {
		status int
		want   any
	}{
		{200, []any{"ada", "grace"}},
		{500, map[string]any{"error": "boom"}},
	} {
		got, ok := p.GetResponse("users", tt.status)
		if !ok {
			t.Fatalf("expected response for %d", tt.status)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestGetResponse_EffectiveStatus(t *testing.T) {
	p := newPlatform(t, platform.Options{})

	implicit, _ := p.GetResponse("users", 0)
	explicit, _ := p.GetResponse("users", 200)
	if !reflect.DeepEqual(implicit, explicit) {
		t.Errorf("implicit %v != explicit default %v", implicit, explicit)
	}

	p.SetStatusOverride("users", 500)
	implicit, _ = p.GetResponse("users", 0)
	overridden, _ := p.GetResponse("users", 500)
	if !reflect.DeepEqual(implicit, overridden) {
		t.Errorf("implicit %v != override %v", implicit, overridden)
	}

	// An explicit status wins over the override.
	explicit, _ = p.GetResponse("users", 200)
	if !reflect.DeepEqual(explicit, []any{"ada", "grace"}) {
		t.Errorf("explicit status ignored: %v", explicit)
	}
}

func TestGetResponse_UnknownEndpoint(t *testing.T) {
	p := newPlatform(t, platform.Options{})

	if _, ok := p.GetResponse("nope", 0); ok {
		t.Error("expected not found for unknown endpoint")
	}
	res := p.Resolve("nope", 0)
	if res.Found || res.Status != 0 {
		t.Errorf("unexpected resolution: %+v", res)
	}
}

func TestGetResponse_DefaultStatusMissingFromTable(t *testing.T) {
	ep := usersEndpoint()
	ep.ID = "broken"
	ep.DefaultStatus = 204

	p := newPlatform(t, platform.Options{Endpoints: []endpoint.PluggableEndpoint{ep}})

	res := p.Resolve("broken", 0)
	if res.Found {
		t.Error("expected not found when default status has no entry")
	}
	if res.Status != 204 {
		t.Errorf("expected effective status 204, got %d", res.Status)
	}
}

func TestGetResponse_EndpointScenarioOverlay(t *testing.T) {
	p := newPlatform(t, platform.Options{Flags: []platform.Flag{{Name: "ALT"}}})
	p.SetEndpointScenario("example", "empty")

	res := p.Resolve("example", 0)
	if !res.Found || res.ScenarioID != "empty" {
		t.Fatalf("expected scenario entry, got %+v", res)
	}
	if got := message(t, res.Payload); got != "" {
		t.Errorf("expected empty message from scenario, got %q", got)
	}

	// 400 is not defined by the scenario and falls back to the endpoint table.
	res = p.Resolve("example", 400)
	if !res.Found || res.ScenarioID != "" {
		t.Fatalf("expected fallback entry, got %+v", res)
	}
	if got := message(t, res.Payload); got != "Bad request" {
		t.Errorf("expected fallback message, got %q", got)
	}
}

func TestGetResponse_UnknownEndpointScenarioIgnored(t *testing.T) {
	p := newPlatform(t, platform.Options{})
	p.SetEndpointScenario("example", "ghost")

	if id, _ := p.EndpointScenario("example"); id != "ghost" {
		t.Errorf("expected unvalidated selection to be stored, got %q", id)
	}
	payload, ok := p.GetResponse("example", 0)
	if !ok || message(t, payload) != "Hello from 200" {
		t.Errorf("expected endpoint table entry, got %v (ok=%v)", payload, ok)
	}
}

func TestGetResponse_TransformSeesCopy(t *testing.T) {
	p := newPlatform(t, platform.Options{})
	p.SetFeatureFlag("ALT", true)

	for i := 0; i < 3; i++ {
		payload, _ := p.GetResponse("example", 0)
		if got := message(t, payload); got != "[ALT MODE] Hello from 200" {
			t.Fatalf("call %d: transform compounded, got %q", i, got)
		}
	}

	ep, _ := p.Endpoint("example")
	stored := ep.Responses[200].(map[string]any)["message"]
	if stored != "Hello from 200" {
		t.Errorf("stored table mutated: %v", stored)
	}
}

func TestGetResponse_CallerMutationDoesNotLeak(t *testing.T) {
	p := newPlatform(t, platform.Options{})

	payload, _ := p.GetResponse("users", 200)
	payload.([]any)[0] = "mallory"

	again, _ := p.GetResponse("users", 200)
	if again.([]any)[0] != "ada" {
		t.Errorf("caller mutation leaked into the table: %v", again)
	}
}

func TestGetResponse_TransformReceivesAllFlags(t *testing.T) {
	var seen endpoint.FlagState
	ep := usersEndpoint()
	ep.Transform = func(payload any, flags endpoint.FlagState) any {
		seen = flags
		return payload
	}

	p := newPlatform(t, platform.Options{
		Endpoints: []endpoint.PluggableEndpoint{ep},
		Flags:     []platform.Flag{{Name: "A"}, {Name: "B", Default: true}},
	})
	p.SetFeatureFlag("C", true)

	p.GetResponse("users", 0)

	want := endpoint.FlagState{"A": false, "B": true, "C": true}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("transform flags = %v, want %v", seen, want)
	}
}

func TestGetResponse_SharedHandlesObserveWrites(t *testing.T) {
	p := newPlatform(t, platform.Options{})
	settings, adapter := p, p

	settings.SetStatusOverride("users", 500)

	payload, ok := adapter.GetResponse("users", 0)
	if !ok || !reflect.DeepEqual(payload, map[string]any{"error": "boom"}) {
		t.Errorf("adapter did not observe settings write: %v", payload)
	}
}
