package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tokscale/tokscale/internal/cache"
	"github.com/tokscale/tokscale/internal/paths"
)

// endpointsBody builds a minimal endpoints response with a single endpoint.
func endpointsBody(provider, prompt, completion string) string {
	return `{"data":{"endpoints":[{"provider_name":"` + provider +
		`","pricing":{"prompt":"` + prompt + `","completion":"` + completion + `"}}]}}`
}

// opusEndpoint serves only anthropic/claude-opus-4.5; everything else 404s.
func opusEndpoint(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/anthropic/claude-opus-4.5/endpoints" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(endpointsBody("Anthropic", "0.000005", "0.000025")))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

// ///////////////////////////////////////////////
// Endpoint Parsing
// ///////////////////////////////////////////////

func TestPricingFromEndpoint(t *testing.T) {
	p, ok := pricingFromEndpoint(endpointPricing{
		Prompt:          "0.000005",
		Completion:      "0.000025",
		InputCacheRead:  "0.0000005",
		InputCacheWrite: "0.00000625",
	})
	if !ok {
		t.Fatal("expected pricing")
	}
	if p.InputCostPerToken != 0.000005 || p.OutputCostPerToken != 0.000025 {
		t.Errorf("base rates = %v / %v", p.InputCostPerToken, p.OutputCostPerToken)
	}
	if p.CacheReadCostPerToken != 0.0000005 || p.CacheCreationCostPerToken != 0.00000625 {
		t.Errorf("cache rates = %v / %v", p.CacheReadCostPerToken, p.CacheCreationCostPerToken)
	}
}

func TestPricingFromEndpointRejectsInvalidRequired(t *testing.T) {
	tests := []struct {
		name               string
		prompt, completion string
	}{
		{"sentinel unavailable", "unavailable", "0.000025"},
		{"negative sentinel", "-1", "0.000025"},
		{"missing completion", "0.000005", ""},
		{"non-numeric", "0.000005", "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := pricingFromEndpoint(endpointPricing{Prompt: tt.prompt, Completion: tt.completion}); ok {
				t.Error("expected rejection")
			}
		})
	}
}

func TestPricingFromEndpointOptionalCacheFields(t *testing.T) {
	// Absent or invalid cache rates are dropped, not fatal.
	p, ok := pricingFromEndpoint(endpointPricing{
		Prompt:         "0.000005",
		Completion:     "0.000025",
		InputCacheRead: "-1",
	})
	if !ok {
		t.Fatal("expected pricing despite invalid optional field")
	}
	if p.CacheReadCostPerToken != 0 || p.CacheCreationCostPerToken != 0 {
		t.Errorf("cache rates = %v / %v, want 0", p.CacheReadCostPerToken, p.CacheCreationCostPerToken)
	}
}

// ///////////////////////////////////////////////
// Provider Matching
// ///////////////////////////////////////////////

func TestFetchModelSelectsExpectedProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"endpoints":[
			{"provider_name":"SomeReseller","pricing":{"prompt":"0.0001","completion":"0.0002"}},
			{"provider_name":"anthropic","pricing":{"prompt":"0.000005","completion":"0.000025"}}
		]}}`))
	}))
	defer server.Close()

	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: t.TempDir()}, nil)
	p, ok := r.fetchModel(context.Background(), "anthropic/claude-opus-4.5")
	if !ok {
		t.Fatal("expected pricing")
	}
	// Provider names compare case-insensitively: "anthropic" matches "Anthropic".
	if p.InputCostPerToken != 0.000005 {
		t.Errorf("input rate = %v, want the Anthropic endpoint, not the reseller", p.InputCostPerToken)
	}
}

func TestFetchModelNoMatchingProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(endpointsBody("SomeReseller", "0.0001", "0.0002")))
	}))
	defer server.Close()

	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: t.TempDir()}, nil)
	if _, ok := r.fetchModel(context.Background(), "anthropic/claude-opus-4.5"); ok {
		t.Error("expected no pricing when only resellers are listed")
	}
}

func TestFetchModelBearerAuth(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(endpointsBody("Anthropic", "0.000005", "0.000025")))
	}))
	defer server.Close()

	r := NewOpenRouterResolver(server.URL, "sk-or-test", testClient(), &cache.Store{Dir: t.TempDir()}, nil)
	if _, ok := r.fetchModel(context.Background(), "anthropic/claude-opus-4.5"); !ok {
		t.Fatal("expected pricing")
	}
	if auth != "Bearer sk-or-test" {
		t.Errorf("Authorization = %q", auth)
	}
}

// ///////////////////////////////////////////////
// Warm-Up
// ///////////////////////////////////////////////

func TestGetPartialResults(t *testing.T) {
	server, _ := opusEndpoint(t)
	dir := t.TempDir()
	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: dir}, nil)

	models := r.Get(context.Background())
	if len(models) != 1 {
		t.Fatalf("models = %d, want 1 (partial results are valid)", len(models))
	}
	if _, ok := models["anthropic/claude-opus-4.5"]; !ok {
		t.Error("missing anthropic/claude-opus-4.5")
	}
	// Non-empty results are persisted.
	if _, err := os.Stat(filepath.Join(dir, paths.OpenRouterCacheFile)); err != nil {
		t.Errorf("cache file not written: %v", err)
	}
}

func TestGetAllFailingYieldsEmptyAndNoCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: dir}, nil)

	models := r.Get(context.Background())
	if len(models) != 0 {
		t.Errorf("models = %d, want 0", len(models))
	}
	// An empty result is never cached, so a later run can retry.
	if _, err := os.Stat(filepath.Join(dir, paths.OpenRouterCacheFile)); !os.IsNotExist(err) {
		t.Errorf("empty result was cached: %v", err)
	}
}

func TestGetMemoized(t *testing.T) {
	server, requests := opusEndpoint(t)
	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: t.TempDir()}, nil)

	r.Get(context.Background())
	first := requests.Load()
	r.Get(context.Background())
	if got := requests.Load(); got != first {
		t.Errorf("requests grew from %d to %d on second Get", first, got)
	}
}

func TestGetPrefersCache(t *testing.T) {
	server, requests := opusEndpoint(t)
	dir := t.TempDir()
	store := &cache.Store{Dir: dir}
	seed := Dataset{"anthropic/claude-opus-4.5": {InputCostPerToken: 0.000005, OutputCostPerToken: 0.000025}}
	if err := cache.Save(store, paths.OpenRouterCacheFile, seed); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	r := NewOpenRouterResolver(server.URL, "", testClient(), store, nil)
	models := r.Get(context.Background())
	if len(models) != 1 {
		t.Errorf("models = %d, want 1 from cache", len(models))
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

// ///////////////////////////////////////////////
// GetModel
// ///////////////////////////////////////////////

func TestGetModelMapped(t *testing.T) {
	server, _ := opusEndpoint(t)
	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: t.TempDir()}, nil)

	p, ok := r.GetModel(context.Background(), "claude-opus-4-5")
	if !ok {
		t.Fatal("expected pricing for mapped id")
	}
	if p.InputCostPerToken != 0.000005 {
		t.Errorf("input rate = %v", p.InputCostPerToken)
	}

	// Provider prefixes are stripped before mapping.
	if _, ok := r.GetModel(context.Background(), "anthropic/claude-opus-4-5"); !ok {
		t.Error("expected pricing for prefixed mapped id")
	}
}

func TestGetModelUnmapped(t *testing.T) {
	server, requests := opusEndpoint(t)
	r := NewOpenRouterResolver(server.URL, "", testClient(), &cache.Store{Dir: t.TempDir()}, nil)

	if _, ok := r.GetModel(context.Background(), "some-unknown-model"); ok {
		t.Error("expected no pricing for unmapped id")
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("requests = %d, want 0 (unmapped ids never hit the network)", got)
	}
}
