package pricing

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tokscale/tokscale/internal/cache"
	"github.com/tokscale/tokscale/internal/fetch"
	"github.com/tokscale/tokscale/internal/paths"
)

// Options configures a Service. Zero values select the published
// endpoint URLs, the standard cache directory, the fetch defaults, and
// the OPENROUTER_API_KEY environment variable.
type Options struct {
	CacheDir          string
	LiteLLMURL        string
	OpenRouterBaseURL string
	APIKey            string
	FetchTimeout      time.Duration
	Retries           int
	Logger            *slog.Logger
}

// Service owns both pricing sources and answers resolution and cost
// queries. Datasets are loaded at most once per Service; create a new
// instance to reload.
type Service struct {
	litellm    *LiteLLMLoader
	openrouter *OpenRouterResolver
	log        *slog.Logger

	mu     sync.Mutex
	lookup *Lookup
	err    error
}

// NewService wires the fetch client, cache store, and both resolvers.
func NewService(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dir := opts.CacheDir
	if dir == "" {
		dir = paths.CacheDir()
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}

	client := fetch.New(fetch.Options{
		Timeout: opts.FetchTimeout,
		Retries: opts.Retries,
		Logger:  log,
	})
	store := &cache.Store{Dir: dir}

	return &Service{
		litellm:    NewLiteLLMLoader(opts.LiteLLMURL, client, store, log),
		openrouter: NewOpenRouterResolver(opts.OpenRouterBaseURL, apiKey, client, store, log),
		log:        log,
	}
}

// Load fetches the primary dataset and warms the fallback source
// concurrently, returning the ready Lookup. A primary failure with no
// usable cache is fatal; fallback failures degrade to an empty map. The
// outcome is memoized.
func (s *Service) Load(ctx context.Context) (*Lookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup != nil {
		return s.lookup, nil
	}
	if s.err != nil {
		return nil, s.err
	}

	var (
		dataset    Dataset
		sorted     []string
		openrouter Dataset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dataset, sorted, err = s.litellm.Get(gctx)
		return err
	})
	g.Go(func() error {
		openrouter = s.openrouter.Get(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.err = err
		return nil, err
	}

	s.lookup = NewLookup(dataset, openrouter, sorted)
	s.log.Debug("pricing service loaded",
		"litellm_models", len(dataset), "openrouter_models", len(openrouter))
	return s.lookup, nil
}

// Resolve runs the full cascade for a raw model identifier, loading the
// datasets on first use. A nil result with nil error means the
// identifier has no known pricing.
func (s *Service) Resolve(ctx context.Context, modelID string) (*LookupResult, error) {
	lookup, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return lookup.Resolve(modelID), nil
}

// ResolveIn is [Service.Resolve] restricted to one source.
func (s *Service) ResolveIn(ctx context.Context, source Source, modelID string) (*LookupResult, error) {
	lookup, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return lookup.ResolveIn(source, modelID), nil
}

// CostFor resolves a model identifier and prices the given usage.
// found is false when the identifier has no known pricing, in which case
// the cost is zero and reporting may proceed with partial coverage.
func (s *Service) CostFor(ctx context.Context, modelID string, usage TokenUsage) (cost float64, found bool, err error) {
	if err := usage.Validate(); err != nil {
		return 0, false, err
	}
	result, err := s.Resolve(ctx, modelID)
	if err != nil {
		return 0, false, err
	}
	if result == nil {
		return 0, false, nil
	}
	return Cost(usage, result.Pricing), true, nil
}
