package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

func testRegistry() *Registry {
	return NewRegistry([]Config{
		{ID: "JIRA", Collection: "jira_docs", Enabled: true},
		{ID: "ZENDESK", Collection: "zendesk_docs", Enabled: true},
		{ID: "CONFLUENCE", Collection: "confluence_docs", Enabled: false},
	})
}

func TestSelect_UsesSourcesHintIntersectedWithEnabled(t *testing.T) {
	registry := testRegistry()
	query := types.Query{Text: "anything", SourcesHint: []types.SourceID{"JIRA", "CONFLUENCE", "UNKNOWN"}}

	got := Select(registry, nil, query)

	assert.Equal(t, []types.SourceID{"JIRA"}, got)
}

func TestSelect_FallsBackToClientMatch(t *testing.T) {
	registry := testRegistry()
	matcher := NewClientMatcher(map[string][]types.SourceID{
		"acme corp": {"ZENDESK"},
	})
	query := types.Query{Text: "I work at Acme Corp and need help"}

	got := Select(registry, matcher, query)

	assert.Equal(t, []types.SourceID{"ZENDESK"}, got)
}

func TestSelect_DefaultsToAllEnabled(t *testing.T) {
	registry := testRegistry()
	query := types.Query{Text: "generic question"}

	got := Select(registry, nil, query)

	assert.Equal(t, []types.SourceID{"JIRA", "ZENDESK"}, got)
}

func TestRegistry_WeightDefaultsToOne(t *testing.T) {
	registry := testRegistry()
	assert.Equal(t, 1.0, registry.Weight("JIRA"))
}
