// Package sources implements source selection (§4.2): mapping a query to
// the ordered subset of SourceIds a fan-out should query.
package sources

import "github.com/helpdesk-ai/ragdesk/pkg/types"

// Config describes one configured knowledge source (§6
// vector_store.collections and §4.2 source weights).
type Config struct {
	ID         types.SourceID
	Collection string
	Weight     float64
	Enabled    bool
}

// Registry is the explicit, dependency-injected set of configured sources
// (§9 "module-level factory singletons" redesign note: no package-level
// global, one registry built at startup and passed through).
type Registry struct {
	byID    map[types.SourceID]Config
	ordered []types.SourceID
}

// NewRegistry builds a Registry from configuration, preserving the
// declaration order of enabled sources for deterministic default fan-out.
func NewRegistry(configs []Config) *Registry {
	r := &Registry{byID: make(map[types.SourceID]Config, len(configs))}
	for _, c := range configs {
		r.byID[c.ID] = c
		if c.Enabled {
			r.ordered = append(r.ordered, c.ID)
		}
	}
	return r
}

// Lookup returns the configuration for a source, if known.
func (r *Registry) Lookup(id types.SourceID) (Config, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Enabled returns the full enabled-source set in declaration order.
func (r *Registry) Enabled() []types.SourceID {
	out := make([]types.SourceID, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Weight returns the configured source weight, defaulting to 1.0 (§4.2).
func (r *Registry) Weight(id types.SourceID) float64 {
	if c, ok := r.byID[id]; ok && c.Weight != 0 {
		return c.Weight
	}
	return 1.0
}
