package sources

import (
	"sort"
	"strings"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// ClientMatcher recognises a client identifier in free text and maps it to
// the sources configured for that client. This is the explicitly
// out-of-scope helper named in spec.md §1 ("A client-name extraction helper
// ... is also out of scope"): a minimal keyword lookup, not a real NLU
// component.
type ClientMatcher struct {
	bySource map[string][]types.SourceID
	keywords []string // longest first, for deterministic, most-specific-wins matching
}

// NewClientMatcher builds a matcher from a client-keyword -> sources map.
func NewClientMatcher(clientSources map[string][]types.SourceID) *ClientMatcher {
	keywords := make([]string, 0, len(clientSources))
	for k := range clientSources {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})
	return &ClientMatcher{bySource: clientSources, keywords: keywords}
}

// Match returns the sources configured for the first recognised client
// keyword in text, or nil if none matched. Keywords are tried longest
// first so an overlapping pair of configured keywords (e.g. "acme" and
// "acme corp") resolves deterministically to the more specific one.
func (m *ClientMatcher) Match(text string) []types.SourceID {
	if m == nil {
		return nil
	}
	lower := strings.ToLower(text)
	for _, keyword := range m.keywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return m.bySource[keyword]
		}
	}
	return nil
}
