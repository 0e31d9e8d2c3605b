package queryengine

import (
	"net/url"
	"strings"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

const snippetCosineDuplicateThreshold = 0.97

// dedup groups hits that refer to the same underlying document (§4.2
// aggregation step 2: shared source_id+doc_id, OR snippet-embedding cosine
// >= 0.97, OR URL-equal after normalization) and keeps the
// highest-final-score member of each group.
func dedup(hits []types.RankedHit) []types.RankedHit {
	groups := make([]*dedupGroup, 0, len(hits))

	for _, hit := range hits {
		placed := false
		for _, g := range groups {
			if g.matches(hit) {
				g.add(hit)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, newDedupGroup(hit))
		}
	}

	out := make([]types.RankedHit, 0, len(groups))
	for i, g := range groups {
		best := g.best
		best.DedupGroup = groupLabel(i)
		out = append(out, best)
	}
	return out
}

type dedupGroup struct {
	members []types.RankedHit
	best    types.RankedHit
}

func newDedupGroup(h types.RankedHit) *dedupGroup {
	return &dedupGroup{members: []types.RankedHit{h}, best: h}
}

func (g *dedupGroup) matches(h types.RankedHit) bool {
	for _, m := range g.members {
		if m.SourceID == h.SourceID && m.DocID == h.DocID {
			return true
		}
		if normalizeURL(m.Payload.URL) == normalizeURL(h.Payload.URL) && normalizeURL(h.Payload.URL) != "" {
			return true
		}
		if len(m.Vector) > 0 && len(h.Vector) > 0 && cosine(m.Vector, h.Vector) >= snippetCosineDuplicateThreshold {
			return true
		}
	}
	return false
}

func (g *dedupGroup) add(h types.RankedHit) {
	g.members = append(g.members, h)
	if h.FinalScore > g.best.FinalScore {
		g.best = h
	}
}

// normalizeURL lowercases the scheme/host, drops a trailing slash and any
// fragment, so equivalent URLs compare equal (§4.2 "URLs ... equal after
// normalization").
func normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func cosine(a, b types.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -2
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func groupLabel(i int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	if i < len(alphabet) {
		return string(alphabet[i])
	}
	return string(alphabet[i%len(alphabet)]) + string(rune('0'+i/len(alphabet)))
}
