package pricing

import "strings"

// Lookup answers pricing queries over a loaded primary dataset and
// fallback map. It is immutable after construction and safe for
// concurrent use.
//
// The lookup strategy is an ordered cascade, stopping at the first hit:
//
//  1. Exact key match in the primary dataset.
//  2. Key match with each provider prefix prepended, in order.
//  3. Steps 1-2 with the normalized identifier.
//  4. Word-boundary fuzzy pass over sorted keys: id (then normalized id)
//     occurring inside a key.
//  5. The reversed fuzzy pass: key occurring inside the id.
//  6. Manual mapping into the fallback map.
//
// Key comparisons are case-insensitive throughout; the dataset itself is
// never mutated, and matched keys are reported as published. Sorted key
// order makes the fuzzy passes deterministic across runs even though the
// first hit is not necessarily the globally best match.
type Lookup struct {
	litellm    Dataset
	openrouter Dataset
	sortedKeys []string
	// lowerIndex maps lowercased primary keys to their published form.
	// On a case-only collision the lexicographically first key wins.
	lowerIndex map[string]string
}

// NewLookup builds a Lookup over the given datasets. sorted may be nil,
// in which case the key index is computed here.
func NewLookup(litellm, openrouter Dataset, sorted []string) *Lookup {
	if sorted == nil {
		sorted = sortedKeys(litellm)
	}
	index := make(map[string]string, len(sorted))
	for _, key := range sorted {
		lower := strings.ToLower(key)
		if _, exists := index[lower]; !exists {
			index[lower] = key
		}
	}
	return &Lookup{
		litellm:    litellm,
		openrouter: openrouter,
		sortedKeys: sorted,
		lowerIndex: index,
	}
}

// ///////////////////////////////////////////////
// Resolution
// ///////////////////////////////////////////////

// Resolve runs the full cascade for a raw model identifier. A nil result
// means "pricing unknown", not an error.
func (l *Lookup) Resolve(modelID string) *LookupResult {
	if r := l.resolveLiteLLM(modelID); r != nil {
		return r
	}
	return l.resolveOpenRouter(modelID)
}

// ResolveIn restricts the cascade to a single source, for callers that
// already know which source produced a historical cost.
func (l *Lookup) ResolveIn(source Source, modelID string) *LookupResult {
	switch source {
	case SourceLiteLLM:
		return l.resolveLiteLLM(modelID)
	case SourceOpenRouter:
		return l.resolveOpenRouter(modelID)
	}
	return nil
}

// resolveLiteLLM runs cascade steps 1-5 against the primary dataset.
func (l *Lookup) resolveLiteLLM(modelID string) *LookupResult {
	if r := l.keyed(modelID); r != nil {
		return r
	}
	if normalized := Normalize(modelID); normalized != "" {
		if r := l.keyed(normalized); r != nil {
			return r
		}
	}
	return l.fuzzy(modelID)
}

// keyed tries the bare key, then each provider-prefixed variant.
func (l *Lookup) keyed(id string) *LookupResult {
	if r := l.byKey(id); r != nil {
		return r
	}
	for _, prefix := range providerPrefixes {
		if r := l.byKey(prefix + id); r != nil {
			return r
		}
	}
	return nil
}

// byKey performs a case-insensitive exact key lookup.
func (l *Lookup) byKey(key string) *LookupResult {
	published, ok := l.lowerIndex[strings.ToLower(key)]
	if !ok {
		return nil
	}
	return &LookupResult{
		Pricing:    l.litellm[published],
		Source:     SourceLiteLLM,
		MatchedKey: published,
	}
}

// fuzzy runs the word-boundary passes over the sorted key index: first
// the identifier inside a key, then the reverse.
func (l *Lookup) fuzzy(modelID string) *LookupResult {
	lower := strings.ToLower(modelID)
	lowerNorm := strings.ToLower(Normalize(modelID))

	for _, key := range l.sortedKeys {
		lowerKey := strings.ToLower(key)
		if isWordBoundaryMatch(lowerKey, lower) {
			return l.fuzzyHit(key)
		}
		if lowerNorm != "" && isWordBoundaryMatch(lowerKey, lowerNorm) {
			return l.fuzzyHit(key)
		}
	}

	for _, key := range l.sortedKeys {
		lowerKey := strings.ToLower(key)
		if isWordBoundaryMatch(lower, lowerKey) {
			return l.fuzzyHit(key)
		}
		if lowerNorm != "" && isWordBoundaryMatch(lowerNorm, lowerKey) {
			return l.fuzzyHit(key)
		}
	}
	return nil
}

func (l *Lookup) fuzzyHit(key string) *LookupResult {
	return &LookupResult{
		Pricing:    l.litellm[key],
		Source:     SourceLiteLLM,
		MatchedKey: key,
	}
}

// resolveOpenRouter runs cascade step 6: the manual mapping into the
// fallback map.
func (l *Lookup) resolveOpenRouter(modelID string) *LookupResult {
	orID, ok := OpenRouterID(modelID)
	if !ok {
		return nil
	}
	p, ok := l.openrouter[orID]
	if !ok {
		return nil
	}
	return &LookupResult{
		Pricing:    p,
		Source:     SourceOpenRouter,
		MatchedKey: orID,
	}
}

// ///////////////////////////////////////////////
// Word-Boundary Matching
// ///////////////////////////////////////////////

// isWordBoundaryMatch reports whether needle occurs in haystack bounded
// by non-alphanumeric characters or string edges on both sides. Only the
// first occurrence is considered: "gpt-4o-mini" contains "4o" as a word,
// "gpt-4orange" does not.
func isWordBoundaryMatch(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	pos := strings.Index(haystack, needle)
	if pos < 0 {
		return false
	}
	beforeOK := pos == 0 || !isAlnum(haystack[pos-1])
	end := pos + len(needle)
	afterOK := end == len(haystack) || !isAlnum(haystack[end])
	return beforeOK && afterOK
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
