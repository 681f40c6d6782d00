package pricing

import "strings"

// providerPrefixes is the fixed, ordered list of provider prefixes tried
// during prefixed key lookup. Order is part of the resolution contract.
var providerPrefixes = []string{
	"anthropic/",
	"openai/",
	"google/",
	"bedrock/",
	"openrouter/",
}

// openRouterMappings is the curated table of local model identifiers to
// OpenRouter composite ids ("author/slug"). Only identifiers listed here
// are ever resolved through the fallback source; the table is fixed at
// build time. Keys are lowercase and looked up case-insensitively.
var openRouterMappings = map[string]string{
	"claude-opus-4-5":   "anthropic/claude-opus-4.5",
	"opus-4-5":          "anthropic/claude-opus-4.5",
	"claude-opus-4-1":   "anthropic/claude-opus-4.1",
	"claude-opus-4":     "anthropic/claude-opus-4",
	"opus-4":            "anthropic/claude-opus-4",
	"claude-sonnet-4-5": "anthropic/claude-sonnet-4.5",
	"sonnet-4-5":        "anthropic/claude-sonnet-4.5",
	"claude-sonnet-4":   "anthropic/claude-sonnet-4",
	"sonnet-4":          "anthropic/claude-sonnet-4",
	"claude-haiku-4-5":  "anthropic/claude-haiku-4.5",
	"haiku-4-5":         "anthropic/claude-haiku-4.5",
	"sonnet-3-7":        "anthropic/claude-3.7-sonnet",
	"gpt-4o":            "openai/gpt-4o",
	"gpt-4.1":           "openai/gpt-4.1",
	"o3":                "openai/o3",
	"gemini-2.5-pro":    "google/gemini-2.5-pro",
	"gemini-2.5-flash":  "google/gemini-2.5-flash",
}

// openRouterProviderNames corrects author slugs to the display provider
// names OpenRouter uses in endpoint listings, for selecting the
// first-party endpoint among resellers. Authors not listed here are
// compared against their slug directly.
var openRouterProviderNames = map[string]string{
	"anthropic": "Anthropic",
	"openai":    "OpenAI",
	"google":    "Google AI Studio",
	"x-ai":      "xAI",
}

// OpenRouterID returns the mapped "author/slug" id for a local model
// identifier, after stripping any recognized provider prefix. The lookup
// is case-insensitive. ok is false for unmapped identifiers.
func OpenRouterID(modelID string) (id string, ok bool) {
	lower := strings.ToLower(modelID)
	for _, prefix := range providerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			lower = strings.TrimPrefix(lower, prefix)
			break
		}
	}
	id, ok = openRouterMappings[lower]
	return id, ok
}

// expectedProviderName returns the display provider name an endpoint must
// carry to be accepted for the given author slug.
func expectedProviderName(author string) string {
	if name, ok := openRouterProviderNames[strings.ToLower(author)]; ok {
		return name
	}
	return author
}
