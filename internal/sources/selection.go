package sources

import "github.com/helpdesk-ai/ragdesk/pkg/types"

// Select implements the §4.2 source-selection rules, in order:
//  1. sources_hint, intersected with enabled sources.
//  2. a recognised client identifier's configured sources.
//  3. the default set (all enabled sources).
func Select(registry *Registry, matcher *ClientMatcher, query types.Query) []types.SourceID {
	if len(query.SourcesHint) > 0 {
		return intersectEnabled(registry, query.SourcesHint)
	}

	if matched := matcher.Match(query.Text); len(matched) > 0 {
		return intersectEnabled(registry, matched)
	}

	return registry.Enabled()
}

func intersectEnabled(registry *Registry, hint []types.SourceID) []types.SourceID {
	out := make([]types.SourceID, 0, len(hint))
	for _, id := range hint {
		if c, ok := registry.Lookup(id); ok && c.Enabled {
			out = append(out, id)
		}
	}
	return out
}
