package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaylabs/dispatch"
	"github.com/relaylabs/dispatch/providers"
)

type fakeProvider struct {
	name string
	tier providers.Tier
	err  error
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) Tier() providers.Tier { return f.tier }
func (f *fakeProvider) Generate(_ context.Context, _ providers.Request) (*providers.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{Content: "hello", TokensUsed: 7}, nil
}
func (f *fakeProvider) Available(_ context.Context) bool { return f.err == nil }

// testDispatcher builds a dispatcher with an unreachable local ollama plus
// any extra fakes the test registers.
func testDispatcher(t *testing.T, extra ...providers.Provider) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(dispatch.Config{
		Providers: []dispatch.ProviderConfig{
			{Kind: "ollama", Tier: "local", BaseURL: "http://localhost:9"},
		},
		Retry:         dispatch.RetryConfig{MaxAttempts: 1},
		FailoverStore: dispatch.StoreConfig{Driver: "memory"},
	})
	if err != nil {
		t.Fatalf("creating dispatcher: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	for _, p := range extra {
		if err := d.RegisterProvider(p); err != nil {
			t.Fatalf("registering provider: %v", err)
		}
	}
	return d
}

func TestHealthz(t *testing.T) {
	r := newRouter(testDispatcher(t))
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	d := testDispatcher(t, &fakeProvider{name: "fake", tier: providers.TierPrimary})
	r := newRouter(d)

	body := `{"system_prompt":"You are helpful","messages":[{"role":"user","content":"Hello"}]}`
	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp providers.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q, want hello", resp.Content)
	}
	if resp.Model != "fake" {
		t.Errorf("model = %q, want fake", resp.Model)
	}
}

func TestGenerateEndpoint_InvalidJSON(t *testing.T) {
	r := newRouter(testDispatcher(t))
	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGenerateEndpoint_ValidationError(t *testing.T) {
	r := newRouter(testDispatcher(t))
	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(`{"messages":[]}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGenerateEndpoint_AllProvidersFailed(t *testing.T) {
	d := testDispatcher(t, &fakeProvider{
		name: "fake", tier: providers.TierPrimary,
		err: errors.New("provider down"),
	})
	r := newRouter(d)

	body := `{"messages":[{"role":"user","content":"Hello"}]}`
	req := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}
	var resp errorResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if !strings.Contains(resp.Error, "all providers failed") {
		t.Errorf("error = %q, want all-providers-failed message", resp.Error)
	}
}

func TestProviderStatusEndpoint(t *testing.T) {
	r := newRouter(testDispatcher(t))
	req := httptest.NewRequest("GET", "/v1/providers/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&body)
	if _, ok := body["providers"]; !ok {
		t.Error("status response missing providers field")
	}
}

func TestFailoversEndpoint(t *testing.T) {
	d := testDispatcher(t, &fakeProvider{
		name: "fake", tier: providers.TierPrimary,
		err: errors.New("provider down"),
	})
	r := newRouter(d)

	// Produce a failover event (fake fails, ollama is unreachable).
	body := `{"messages":[{"role":"user","content":"Hello"}]}`
	genReq := httptest.NewRequest("POST", "/v1/generate", strings.NewReader(body))
	r.ServeHTTP(httptest.NewRecorder(), genReq)

	req := httptest.NewRequest("GET", "/v1/failovers?limit=10", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Events []map[string]interface{} `json:"events"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Errorf("got %d events, want 1", len(resp.Events))
	}
}

func TestFailoversEndpoint_BadLimit(t *testing.T) {
	r := newRouter(testDispatcher(t))
	req := httptest.NewRequest("GET", "/v1/failovers?limit=minus-one", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	r := newRouter(testDispatcher(t))
	req := httptest.NewRequest("GET", "/v1/usage", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
