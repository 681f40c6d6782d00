package pricing

import "strings"

// Normalize maps a free-form model identifier to a canonical
// family+version token ("opus-4-5", "sonnet-4", "gpt-4o", ...), bridging
// naming differences between callers and the pricing datasets. Returns ""
// when no rule recognizes the id; callers treat that as "no normalization
// available", not an error.
//
// Rule order matters within a family: version-specific substrings are
// checked before the bare family+major-version fallback, so
// "claude-opus-4-5-20251101" becomes "opus-4-5" rather than "opus-4".
func Normalize(modelID string) string {
	lower := strings.ToLower(modelID)

	if strings.Contains(lower, "opus") {
		switch {
		case strings.Contains(lower, "4.5") || strings.Contains(lower, "4-5"):
			return "opus-4-5"
		case strings.Contains(lower, "4"):
			return "opus-4"
		}
	}
	if strings.Contains(lower, "sonnet") {
		switch {
		case strings.Contains(lower, "4.5") || strings.Contains(lower, "4-5"):
			return "sonnet-4-5"
		case strings.Contains(lower, "4"):
			return "sonnet-4"
		case strings.Contains(lower, "3.7") || strings.Contains(lower, "3-7"):
			return "sonnet-3-7"
		case strings.Contains(lower, "3.5") || strings.Contains(lower, "3-5"):
			return "sonnet-3-5"
		}
	}
	if strings.Contains(lower, "haiku") &&
		(strings.Contains(lower, "4.5") || strings.Contains(lower, "4-5")) {
		return "haiku-4-5"
	}

	if lower == "o3" {
		return "o3"
	}
	if strings.HasPrefix(lower, "gpt-4o") {
		return "gpt-4o"
	}
	if strings.Contains(lower, "gpt-4.1") {
		return "gpt-4.1"
	}

	if strings.Contains(lower, "gemini-2.5-pro") {
		return "gemini-2.5-pro"
	}
	if strings.Contains(lower, "gemini-2.5-flash") {
		return "gemini-2.5-flash"
	}

	return ""
}
