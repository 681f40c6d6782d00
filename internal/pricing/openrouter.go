package pricing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tokscale/tokscale/internal/cache"
	"github.com/tokscale/tokscale/internal/fetch"
	"github.com/tokscale/tokscale/internal/paths"
)

// DefaultOpenRouterBaseURL is the models API root; per-model endpoint
// listings live under {base}/{author}/{slug}/endpoints.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1/models"

// APIKeyEnv names the environment variable carrying the optional
// OpenRouter bearer token. Absence restricts results to the
// unauthenticated tier; it is not an error.
const APIKeyEnv = "OPENROUTER_API_KEY"

// ///////////////////////////////////////////////
// Resolver
// ///////////////////////////////////////////////

// OpenRouterResolver resolves pricing for the curated openRouterMappings
// identifiers by querying OpenRouter's per-model endpoints API. It never
// fails hard: identifiers that cannot be resolved are simply absent from
// the result, and a fully failed warm-up yields an empty map.
type OpenRouterResolver struct {
	baseURL string
	apiKey  string
	client  *fetch.Client
	store   *cache.Store
	log     *slog.Logger

	mu     sync.Mutex
	state  loadState
	models Dataset // keyed by "author/slug"
}

// NewOpenRouterResolver creates a resolver against baseURL (empty means
// [DefaultOpenRouterBaseURL]). apiKey may be empty.
func NewOpenRouterResolver(baseURL, apiKey string, client *fetch.Client, store *cache.Store, log *slog.Logger) *OpenRouterResolver {
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenRouterResolver{baseURL: baseURL, apiKey: apiKey, client: client, store: store, log: log}
}

// Get returns pricing for every mapped identifier that could be
// resolved, loading once per instance: disk cache first, otherwise one
// parallel endpoints call per unique mapped id. Partial results are
// valid; the result is persisted only when non-empty so a bad run can be
// retried later.
func (r *OpenRouterResolver) Get(ctx context.Context) Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateLoaded {
		return r.models
	}

	if cached, ok := cache.Load[Dataset](r.store, paths.OpenRouterCacheFile, cache.Options{
		RequireNonEmpty: true,
		PurgeStale:      true,
	}); ok {
		r.log.Debug("openrouter pricing loaded from cache", "models", len(cached))
		r.state = stateLoaded
		r.models = cached
		return r.models
	}

	result := r.fetchAllMapped(ctx)
	if len(result) > 0 {
		if err := cache.Save(r.store, paths.OpenRouterCacheFile, result); err != nil {
			r.log.Warn("failed to write openrouter pricing cache", "error", err)
		}
	}

	r.state = stateLoaded
	r.models = result
	return r.models
}

// GetModel resolves pricing for a single model identifier through the
// manual mapping table, preferring already-loaded data. Unmapped or
// unresolvable identifiers report ok=false.
func (r *OpenRouterResolver) GetModel(ctx context.Context, modelID string) (ModelPricing, bool) {
	orID, ok := OpenRouterID(modelID)
	if !ok {
		return ModelPricing{}, false
	}

	r.mu.Lock()
	if r.state == stateLoaded {
		if p, ok := r.models[orID]; ok {
			r.mu.Unlock()
			return p, true
		}
	}
	r.mu.Unlock()

	return r.fetchModel(ctx, orID)
}

// fetchAllMapped issues one endpoints call per unique mapped identifier,
// all in parallel. A slow or failing identifier never blocks the others.
func (r *OpenRouterResolver) fetchAllMapped(ctx context.Context) Dataset {
	unique := make(map[string]struct{}, len(openRouterMappings))
	for _, id := range openRouterMappings {
		unique[id] = struct{}{}
	}

	var mu sync.Mutex
	result := make(Dataset, len(unique))

	g, ctx := errgroup.WithContext(ctx)
	for id := range unique {
		id := id
		g.Go(func() error {
			if p, ok := r.fetchModel(ctx, id); ok {
				mu.Lock()
				result[id] = p
				mu.Unlock()
			}
			// Per-identifier failures are isolated; partial results are valid.
			return nil
		})
	}
	_ = g.Wait()

	r.log.Debug("openrouter warm-up complete", "requested", len(unique), "resolved", len(result))
	return result
}

// ///////////////////////////////////////////////
// Endpoint Resolution
// ///////////////////////////////////////////////

// endpointsResponse mirrors the per-model endpoints API payload.
type endpointsResponse struct {
	Data struct {
		Endpoints []endpoint `json:"endpoints"`
	} `json:"data"`
}

type endpoint struct {
	ProviderName string          `json:"provider_name"`
	Pricing      endpointPricing `json:"pricing"`
}

// endpointPricing holds the per-token price strings from OpenRouter.
// Prices are transmitted as string-encoded decimals (e.g. "0.000015");
// the cache fields may be absent.
type endpointPricing struct {
	Prompt          string `json:"prompt"`
	Completion      string `json:"completion"`
	InputCacheRead  string `json:"input_cache_read"`
	InputCacheWrite string `json:"input_cache_write"`
}

// fetchModel queries the endpoints listing for an "author/slug" id and
// extracts pricing from the endpoint belonging to the expected first-party
// provider. Any failure — bad id, network, no matching provider, invalid
// required rates — yields ok=false.
func (r *OpenRouterResolver) fetchModel(ctx context.Context, orID string) (ModelPricing, bool) {
	author, slug, ok := strings.Cut(orID, "/")
	if !ok || author == "" || slug == "" {
		return ModelPricing{}, false
	}

	url := r.baseURL + "/" + author + "/" + slug + "/endpoints"
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		header.Set("Authorization", "Bearer "+r.apiKey)
	}

	body, err := r.client.Get(ctx, url, header)
	if err != nil {
		r.log.Debug("openrouter endpoints fetch failed", "model", orID, "error", err)
		return ModelPricing{}, false
	}

	var resp endpointsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		r.log.Debug("openrouter endpoints parse failed", "model", orID, "error", err)
		return ModelPricing{}, false
	}

	expected := expectedProviderName(author)
	for _, e := range resp.Data.Endpoints {
		if !strings.EqualFold(e.ProviderName, expected) {
			continue
		}
		return pricingFromEndpoint(e.Pricing)
	}
	r.log.Debug("openrouter endpoints: no matching provider", "model", orID, "provider", expected)
	return ModelPricing{}, false
}

// pricingFromEndpoint converts an endpoint's decimal-string rates. The
// prompt and completion rates are required and must be non-negative
// numbers; sentinel markers ("unavailable", "-1") reject the record.
// Cache rates are optional and individually discarded when invalid.
func pricingFromEndpoint(ep endpointPricing) (ModelPricing, bool) {
	input, ok := parseRate(ep.Prompt)
	if !ok {
		return ModelPricing{}, false
	}
	output, ok := parseRate(ep.Completion)
	if !ok {
		return ModelPricing{}, false
	}

	p := ModelPricing{
		InputCostPerToken:  input,
		OutputCostPerToken: output,
	}
	if v, ok := parseRate(ep.InputCacheRead); ok {
		p.CacheReadCostPerToken = v
	}
	if v, ok := parseRate(ep.InputCacheWrite); ok {
		p.CacheCreationCostPerToken = v
	}
	return p, true
}

// parseRate parses a decimal-string rate, rejecting empty strings,
// non-numeric values, and negatives.
func parseRate(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
