// Package pricing resolves per-token costs for AI model identifiers.
//
// Pricing comes from two sources: the LiteLLM bulk pricing table (the
// authoritative primary dataset, fetched in one request) and OpenRouter's
// per-model endpoints API (a curated fallback consulted only for
// identifiers the primary dataset does not cover). Both are cached on
// disk with a one hour TTL via [internal/cache].
//
// [Service] is the main entry point: it loads both sources concurrently,
// then answers lookups through a cascading match strategy (exact key,
// provider-prefixed key, normalized id, word-boundary fuzzy, manual
// fallback mapping) and converts token counts to dollar totals.
package pricing

import (
	"fmt"
	"math"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Source identifies which dataset produced a lookup result.
type Source string

const (
	// SourceLiteLLM is the bulk primary pricing table.
	SourceLiteLLM Source = "litellm"
	// SourceOpenRouter is the per-model fallback source.
	SourceOpenRouter Source = "openrouter"
)

// ModelPricing holds per-token USD rates for a model.
//
// The above-200k tiered rates are carried for dataset fidelity but are
// not applied by [Cost]; billing above the threshold is the upstream
// dataset's concern, not this engine's.
type ModelPricing struct {
	InputCostPerToken         float64 `json:"input_cost_per_token,omitempty"`
	OutputCostPerToken        float64 `json:"output_cost_per_token,omitempty"`
	CacheCreationCostPerToken float64 `json:"cache_creation_input_token_cost,omitempty"`
	CacheReadCostPerToken     float64 `json:"cache_read_input_token_cost,omitempty"`

	InputCostAbove200k         float64 `json:"input_cost_per_token_above_200k_tokens,omitempty"`
	OutputCostAbove200k        float64 `json:"output_cost_per_token_above_200k_tokens,omitempty"`
	CacheCreationCostAbove200k float64 `json:"cache_creation_input_token_cost_above_200k_tokens,omitempty"`
	CacheReadCostAbove200k     float64 `json:"cache_read_input_token_cost_above_200k_tokens,omitempty"`
}

// valid reports whether every present rate is a non-negative finite
// number. Records violating this are discarded at parse time rather than
// patched with guessed values.
func (p ModelPricing) valid() bool {
	for _, r := range []float64{
		p.InputCostPerToken, p.OutputCostPerToken,
		p.CacheCreationCostPerToken, p.CacheReadCostPerToken,
		p.InputCostAbove200k, p.OutputCostAbove200k,
		p.CacheCreationCostAbove200k, p.CacheReadCostAbove200k,
	} {
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return false
		}
	}
	return true
}

// Dataset maps dataset keys (e.g. "anthropic/claude-sonnet-4-5") to
// pricing records. Keys are kept case-sensitive as published; all
// matching against them is done case-insensitively by [Lookup].
type Dataset map[string]ModelPricing

// LookupResult reports a resolved pricing record, the source that held
// it, and the dataset key that matched.
type LookupResult struct {
	Pricing    ModelPricing
	Source     Source
	MatchedKey string
}

// ///////////////////////////////////////////////
// Token Usage
// ///////////////////////////////////////////////

// TokenUsage is a per-message token count breakdown supplied by the
// upstream session scanner. Reasoning tokens are billed at the output
// rate.
type TokenUsage struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	Reasoning  int64 `json:"reasoning,omitempty"`
	CacheRead  int64 `json:"cacheRead"`
	CacheWrite int64 `json:"cacheWrite"`
}

// Validate rejects usage records with negative counts. Upstream records
// are validated here, at the collaborator boundary, so resolution logic
// can assume well-formed values.
func (u TokenUsage) Validate() error {
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"input", u.Input},
		{"output", u.Output},
		{"reasoning", u.Reasoning},
		{"cacheRead", u.CacheRead},
		{"cacheWrite", u.CacheWrite},
	} {
		if f.v < 0 {
			return fmt.Errorf("token usage field %s is negative: %d", f.name, f.v)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Cost Calculation
// ///////////////////////////////////////////////

// Cost multiplies token counts by per-token rates. Absent rates count as
// zero. No rounding is applied; presentation rounding is the caller's
// concern.
func Cost(u TokenUsage, p ModelPricing) float64 {
	cost := float64(u.Input) * p.InputCostPerToken
	cost += float64(u.Output+u.Reasoning) * p.OutputCostPerToken
	cost += float64(u.CacheWrite) * p.CacheCreationCostPerToken
	cost += float64(u.CacheRead) * p.CacheReadCostPerToken
	return cost
}
