// Package tokenizer provides plain-text token counting for the Response
// Builder's context budget (§4.3 "B_ctx ... estimated by 4 chars/token").
// It uses tiktoken with the model's own encoding where one is known and
// cl100k_base otherwise; the spec's 4-chars-per-token estimate applies only
// when no encoding can be loaded at all. The provider's own reported
// prompt_tokens/completion_tokens remain authoritative for token-economy
// accounting once an LLM call completes (see internal/orchestrator and
// internal/cache for that accounting).
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache sync.Map
	defaultOnce   sync.Once
	defaultEnc    *tiktoken.Tiktoken
)

// CountTextTokens returns the token count for text under model's encoding,
// falling back to len(text)/4 when no encoding can be resolved.
func CountTextTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := getEncoding(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate shortens text to fit within maxTokens under model's encoding,
// trimming from the tail (§4.3: "truncating from the tail ... of the
// snippet"). It returns the text unchanged if it already fits.
func Truncate(model, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	enc := getEncoding(model)
	if enc == nil {
		maxChars := maxTokens * 4
		if len(text) <= maxChars {
			return text
		}
		return text[:maxChars]
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}

func getEncoding(model string) *tiktoken.Tiktoken {
	base := normalizeModelName(model)
	if cached, ok := encodingCache.Load(base); ok {
		if enc, ok := cached.(*tiktoken.Tiktoken); ok {
			return enc
		}
		return getDefaultEncoding()
	}

	if strings.Contains(base, "gpt-4o") {
		if enc, err := tiktoken.GetEncoding("o200k_base"); err == nil {
			encodingCache.Store(base, enc)
			return enc
		}
	}

	enc, err := tiktoken.EncodingForModel(base)
	if err != nil {
		enc = getDefaultEncoding()
	}
	if enc != nil {
		encodingCache.Store(base, enc)
	}
	return enc
}

func getDefaultEncoding() *tiktoken.Tiktoken {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			defaultEnc = enc
		}
	})
	return defaultEnc
}

func normalizeModelName(model string) string {
	if model == "" {
		return model
	}
	if idx := strings.LastIndex(model, "/"); idx >= 0 && idx+1 < len(model) {
		return model[idx+1:]
	}
	return model
}
