package plugmock_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/plugmock/internal/domain/trace"
	"github.com/sophialabs/plugmock/internal/infrastructure/wiring"
	"github.com/sophialabs/plugmock/internal/testutil"
)

func setupE2EServer(t *testing.T) *httptest.Server {
	t.Helper()

	c, err := wiring.New(wiring.Params{
		RootDir:        "./mock",
		TraceSize:      100,
		RateLimiterTTL: 10 * time.Minute,
		Logger:         &testutil.NoopLogger{},
		State:          wiring.StateMemory,
	})
	if err != nil {
		t.Fatalf("failed to wire: %v", err)
	}
	t.Cleanup(c.Close)

	if err := c.Server().Reload(context.Background()); err != nil {
		t.Fatalf("failed to load definitions: %v", err)
	}

	ts := httptest.NewServer(c.Server())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func jsonBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	return v
}

func TestE2E_HealthCheck(t *testing.T) {
	ts := setupE2EServer(t)

	status, body := call(t, "GET", ts.URL+"/__admin/health", "")
	if status != 200 {
		t.Errorf("expected 200, got %d", status)
	}
	if jsonBody[map[string]any](t, body)["status"] != "ok" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestE2E_ExampleEndpoint(t *testing.T) {
	ts := setupE2EServer(t)

	status, body := call(t, "GET", ts.URL+"/api/example", "")
	if status != 200 || jsonBody[map[string]any](t, body)["message"] != "Hello from 200" {
		t.Fatalf("expected default greeting, got %d %s", status, body)
	}

	call(t, "PUT", ts.URL+"/__admin/flags/ALT", `{"value":true}`)
	_, body = call(t, "GET", ts.URL+"/api/example", "")
	if got := jsonBody[map[string]any](t, body)["message"]; got != "[ALT MODE] Hello from 200" {
		t.Errorf("expected ALT greeting, got %v", got)
	}

	call(t, "PUT", ts.URL+"/__admin/endpoints/example/status", `{"status":400}`)
	status, body = call(t, "GET", ts.URL+"/api/example", "")
	if status != 400 || jsonBody[map[string]any](t, body)["message"] != "[ALT MODE] Bad request" {
		t.Errorf("expected ALT bad request, got %d %s", status, body)
	}

	_, body = call(t, "GET", ts.URL+"/__admin/endpoints/example/preview?status=999", "")
	if jsonBody[map[string]any](t, body)["found"] != false {
		t.Errorf("expected 999 to be not found, got %s", body)
	}

	call(t, "DELETE", ts.URL+"/__admin/endpoints/example/status", "")
	_, body = call(t, "GET", ts.URL+"/api/example?lang=fr", "")
	if got := jsonBody[map[string]any](t, body)["message"]; got != "Bonjour" {
		t.Errorf("expected query response, got %v", got)
	}
}

func TestE2E_IncludedPayloadAndTemplate(t *testing.T) {
	ts := setupE2EServer(t)

	status, body := call(t, "GET", ts.URL+"/api/users", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if users := jsonBody[[]any](t, body); len(users) != 2 {
		t.Errorf("expected 2 users from included file, got %d", len(users))
	}

	call(t, "PUT", ts.URL+"/__admin/flags/VIP", `{"value":true}`)
	_, body = call(t, "GET", ts.URL+"/api/users", "")
	vip := jsonBody[map[string]any](t, body)
	if vip["tier"] != "vip" || vip["count"] != float64(2) {
		t.Errorf("expected VIP envelope, got %v", vip)
	}

	call(t, "PUT", ts.URL+"/__admin/endpoints/list-users/scenario", `{"scenario":"none"}`)
	_, body = call(t, "GET", ts.URL+"/api/users", "")
	if vip := jsonBody[map[string]any](t, body); vip["count"] != float64(0) {
		t.Errorf("expected scenario payload through transform, got %v", vip)
	}
}

func TestE2E_RouteParamsAndMethods(t *testing.T) {
	ts := setupE2EServer(t)

	status, body := call(t, "GET", ts.URL+"/api/users/1", "")
	if status != 200 || jsonBody[map[string]any](t, body)["name"] != "Ada Lovelace" {
		t.Errorf("unexpected user: %d %s", status, body)
	}

	status, body = call(t, "POST", ts.URL+"/api/users", `{"name":"Linus"}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d", status)
	}
	created := jsonBody[map[string]any](t, body)
	if id, _ := created["requestId"].(string); len(id) != 36 {
		t.Errorf("expected uuid requestId, got %v", created["requestId"])
	}
}

func TestE2E_PlatformScenario(t *testing.T) {
	ts := setupE2EServer(t)

	status, _ := call(t, "POST", ts.URL+"/__admin/scenarios/degraded/activate", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	status, body := call(t, "GET", ts.URL+"/api/orders", "")
	if status != 503 {
		t.Errorf("expected 503 from scenario, got %d %s", status, body)
	}
	status, body = call(t, "GET", ts.URL+"/api/example", "")
	if status != 400 || jsonBody[map[string]any](t, body)["message"] != "[ALT MODE] Bad request" {
		t.Errorf("expected degraded greeting, got %d %s", status, body)
	}

	call(t, "POST", ts.URL+"/__admin/scenarios/happy-path/activate", "")
	status, _ = call(t, "GET", ts.URL+"/api/orders", "")
	if status != 200 {
		t.Errorf("expected 200 after happy-path, got %d", status)
	}
}

func TestE2E_DisabledByDefault(t *testing.T) {
	ts := setupE2EServer(t)

	_, body := call(t, "GET", ts.URL+"/__admin/disabled", "")
	disabled := jsonBody[[]string](t, body)
	if len(disabled) != 1 || disabled[0] != "legacy-report" {
		t.Fatalf("expected legacy-report disabled, got %v", disabled)
	}

	call(t, "POST", ts.URL+"/__admin/endpoints/legacy-report/enable", "")
	status, body := call(t, "GET", ts.URL+"/reports/daily", "")
	if status != 200 || jsonBody[map[string]any](t, body)["report"] != "mocked" {
		t.Errorf("expected mocked report after enable, got %d %s", status, body)
	}
}

func TestE2E_UnknownPath(t *testing.T) {
	ts := setupE2EServer(t)

	status, body := call(t, "GET", ts.URL+"/api/nothing", "")
	if status != 404 {
		t.Errorf("expected 404, got %d", status)
	}
	if jsonBody[map[string]any](t, body)["error"] != "Not found" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestE2E_Trace(t *testing.T) {
	ts := setupE2EServer(t)

	call(t, "GET", ts.URL+"/api/example", "")
	call(t, "GET", ts.URL+"/api/orders", "")

	_, body := call(t, "GET", ts.URL+"/__admin/trace?last=5", "")
	entries := jsonBody[[]trace.Entry](t, body)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Outcome != trace.OutcomeMocked {
			t.Errorf("expected mocked outcome, got %+v", e)
		}
	}

	_, body = call(t, "GET", ts.URL+"/__admin/ratelimits", "")
	if buckets := jsonBody[[]map[string]any](t, body); len(buckets) != 1 || buckets[0]["key"] != "orders" {
		t.Errorf("expected orders bucket, got %v", buckets)
	}
}
