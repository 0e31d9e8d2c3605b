package queryengine

import (
	"sort"

	"github.com/helpdesk-ai/ragdesk/internal/sources"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// rank drops invalid payloads, assigns final_score = score * source_weight
// (§4.2 aggregation step 1 and 3), and returns the hits in Hit order
// (unsorted; dedup and truncation happen separately).
func rank(registry *sources.Registry, hits []types.Hit) []types.RankedHit {
	out := make([]types.RankedHit, 0, len(hits))
	for _, h := range hits {
		if !h.Payload.Valid() {
			continue
		}
		out = append(out, types.RankedHit{
			Hit:        h,
			FinalScore: h.Score * registry.Weight(h.SourceID),
		})
	}
	return out
}

// sortAndTruncate stable-sorts by final_score descending and truncates to
// topKGlobal (§4.2 aggregation step 4).
func sortAndTruncate(hits []types.RankedHit, topKGlobal int) []types.RankedHit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].FinalScore > hits[j].FinalScore
	})
	if topKGlobal > 0 && len(hits) > topKGlobal {
		hits = hits[:topKGlobal]
	}
	return hits
}
