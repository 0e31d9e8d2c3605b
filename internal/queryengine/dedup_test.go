package queryengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

func hit(sourceID, docID string, score float64, url string) types.RankedHit {
	return types.RankedHit{
		Hit: types.Hit{
			SourceID: types.SourceID(sourceID),
			DocID:    docID,
			Score:    score,
			Payload:  types.Payload{Title: "t", URL: url, TextSnippet: "s"},
		},
		FinalScore: score,
	}
}

func TestDedup_GroupsBySourceAndDocID(t *testing.T) {
	in := []types.RankedHit{
		hit("confluence", "doc-1", 0.9, "https://wiki/doc-1"),
		hit("confluence", "doc-1", 0.5, "https://wiki/doc-1"),
	}

	out := dedup(in)

	assert.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].FinalScore)
}

func TestDedup_GroupsByNormalizedURL(t *testing.T) {
	in := []types.RankedHit{
		hit("confluence", "doc-1", 0.9, "https://Wiki.Example.com/Reset-Password/"),
		hit("zendesk", "kb-9", 0.6, "https://wiki.example.com/Reset-Password"),
	}

	out := dedup(in)

	assert.Len(t, out, 1)
	assert.Equal(t, "confluence", string(out[0].SourceID))
}

func TestDedup_GroupsBySnippetCosineAboveThreshold(t *testing.T) {
	a := hit("confluence", "doc-1", 0.9, "https://wiki/a")
	a.Vector = types.Vector{1, 0, 0}
	b := hit("zendesk", "kb-2", 0.7, "https://wiki/b")
	b.Vector = types.Vector{0.99, 0.01, 0}

	out := dedup([]types.RankedHit{a, b})

	assert.Len(t, out, 1)
	assert.Equal(t, "confluence", string(out[0].SourceID))
}

func TestDedup_KeepsDistinctHitsSeparate(t *testing.T) {
	in := []types.RankedHit{
		hit("confluence", "doc-1", 0.9, "https://wiki/a"),
		hit("zendesk", "kb-2", 0.7, "https://wiki/b"),
	}

	out := dedup(in)

	assert.Len(t, out, 2)
}

func TestNormalizeURL_IgnoresSchemeCaseHostCaseTrailingSlashAndFragment(t *testing.T) {
	a := normalizeURL("HTTPS://Example.COM/Path/")
	b := normalizeURL("https://example.com/Path#section")

	assert.Equal(t, a, b)
}
