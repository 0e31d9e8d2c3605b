package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTextTokens_Empty(t *testing.T) {
	assert.Equal(t, 0, CountTextTokens("gpt-4o", ""))
}

func TestCountTextTokens_FallsBackWithoutPanicking(t *testing.T) {
	// Even for an unrecognised model name, counting must never panic and
	// must return a positive estimate for non-empty text.
	n := CountTextTokens("some-unknown-model-xyz", "how do I reset my password?")
	assert.Greater(t, n, 0)
}

func TestTruncate_ShortTextUnchanged(t *testing.T) {
	text := "short snippet"
	assert.Equal(t, text, Truncate("gpt-4o", text, 1000))
}

func TestTruncate_LongTextShrinks(t *testing.T) {
	text := strings.Repeat("password reset procedure documentation entry. ", 500)
	truncated := Truncate("gpt-4o", text, 50)
	assert.Less(t, len(truncated), len(text))
}

func TestTruncate_ZeroBudgetYieldsEmpty(t *testing.T) {
	assert.Equal(t, "", Truncate("gpt-4o", "anything", 0))
}

func TestNormalizeModelName_StripsProviderPrefix(t *testing.T) {
	assert.Equal(t, "gpt-4o", normalizeModelName("openai/gpt-4o"))
	assert.Equal(t, "gpt-4o", normalizeModelName("gpt-4o"))
}
