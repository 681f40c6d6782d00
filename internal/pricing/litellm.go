package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tokscale/tokscale/internal/cache"
	"github.com/tokscale/tokscale/internal/fetch"
	"github.com/tokscale/tokscale/internal/paths"
)

// DefaultLiteLLMURL is the published location of the bulk pricing table.
const DefaultLiteLLMURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// loadState is the one-shot lifecycle of a dataset loader.
type loadState int

const (
	stateUnloaded loadState = iota
	stateLoaded
	stateFailed
)

// ///////////////////////////////////////////////
// Loader
// ///////////////////////////////////////////////

// LiteLLMLoader loads the primary pricing dataset once per instance:
// disk cache first, network otherwise. A network failure with no usable
// cache is fatal, since no pricing exists without this dataset. After the
// first Get the outcome (dataset or error) is memoized; a new instance is
// required to reload.
type LiteLLMLoader struct {
	url    string
	client *fetch.Client
	store  *cache.Store
	log    *slog.Logger

	mu         sync.Mutex
	state      loadState
	dataset    Dataset
	sortedKeys []string
	err        error
}

// NewLiteLLMLoader creates a loader fetching from url (empty means
// [DefaultLiteLLMURL]) and caching in store.
func NewLiteLLMLoader(url string, client *fetch.Client, store *cache.Store, log *slog.Logger) *LiteLLMLoader {
	if url == "" {
		url = DefaultLiteLLMURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &LiteLLMLoader{url: url, client: client, store: store, log: log}
}

// Get returns the dataset and its lexicographically sorted key index,
// loading on first call. Concurrent callers block until the single load
// completes.
func (l *LiteLLMLoader) Get(ctx context.Context) (Dataset, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateLoaded:
		return l.dataset, l.sortedKeys, nil
	case stateFailed:
		return nil, nil, l.err
	}

	dataset, err := l.load(ctx)
	if err != nil {
		l.state = stateFailed
		l.err = err
		return nil, nil, err
	}

	l.state = stateLoaded
	l.dataset = dataset
	l.sortedKeys = sortedKeys(dataset)
	return l.dataset, l.sortedKeys, nil
}

// load tries the disk cache, then the network. A successful fetch is
// persisted before being returned.
func (l *LiteLLMLoader) load(ctx context.Context) (Dataset, error) {
	if cached, ok := cache.Load[Dataset](l.store, paths.LiteLLMCacheFile, cache.Options{}); ok {
		l.log.Debug("litellm pricing loaded from cache", "models", len(cached))
		return cached, nil
	}

	body, err := l.client.Get(ctx, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching litellm pricing: %w", err)
	}
	dataset, err := parseLiteLLM(body)
	if err != nil {
		return nil, err
	}

	if err := cache.Save(l.store, paths.LiteLLMCacheFile, dataset); err != nil {
		l.log.Warn("failed to write litellm pricing cache", "error", err)
	}
	l.log.Debug("litellm pricing fetched", "models", len(dataset))
	return dataset, nil
}

// ///////////////////////////////////////////////
// Parsing
// ///////////////////////////////////////////////

// parseLiteLLM decodes the flat {"model-id": {rates...}} table. Entries
// that do not decode, or that carry negative or non-finite rates, are
// discarded individually so one malformed record cannot poison the rest
// of the table. Extra fields on each entry are ignored.
func parseLiteLLM(body []byte) (Dataset, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing litellm response: %w", err)
	}

	dataset := make(Dataset, len(raw))
	for key, entry := range raw {
		var p ModelPricing
		if err := json.Unmarshal(entry, &p); err != nil {
			continue
		}
		if !p.valid() {
			continue
		}
		dataset[key] = p
	}
	return dataset, nil
}

// sortedKeys returns the dataset keys in lexicographic order. The sorted
// index makes fuzzy matching deterministic across runs.
func sortedKeys(d Dataset) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
