package responsebuilder

import (
	"fmt"
	"strings"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

const (
	conciseWordCap  = 120
	detailedWordCap = 400
)

// systemPrompt returns the fixed system message for mode (§4.3 "System
// message: fixed template parameterised by mode"). When hasContext is false
// (the fan-out returned empty+errors, §4.5 step 4) the template drops the
// context-grounding instruction and asks for a disclaimer instead, since
// there are no numbered entries to cite.
func systemPrompt(mode types.Mode, hasContext bool) string {
	wordCap := conciseWordCap
	style := "as concisely as possible"
	if mode == types.ModeDetailed {
		wordCap = detailedWordCap
		style = ""
	}

	if !hasContext {
		return fmt.Sprintf(
			"You are an IT helpdesk assistant. No knowledge base context was found for this question. "+
				"Answer from general knowledge, but open with a brief disclaimer that the answer is not "+
				"grounded in the internal knowledge base. Limit the answer to about %d words.",
			wordCap,
		)
	}

	if style == "" {
		return fmt.Sprintf(
			"You are an IT helpdesk assistant. Answer the user's question using only the numbered "+
				"context entries below. Cite sources by their bracketed number. If the context does not "+
				"contain the answer, say so plainly instead of guessing. Limit the answer to about %d words.",
			wordCap,
		)
	}
	return fmt.Sprintf(
		"You are an IT helpdesk assistant. Answer the user's question using only the numbered "+
			"context entries below, %s. Cite sources by their bracketed number. "+
			"If the context does not contain the answer, say so plainly instead of guessing. Limit the "+
			"answer to about %d words.",
		style, wordCap,
	)
}

// maxTokensForMode derives the LLM max_tokens parameter from mode (§4.3
// "max_tokens derived from mode"), at roughly 1.6 tokens/word headroom over
// the word cap.
func maxTokensForMode(mode types.Mode) int {
	if mode == types.ModeDetailed {
		return int(float64(detailedWordCap) * 1.6)
	}
	return int(float64(conciseWordCap) * 1.6)
}

// contextEntryLine formats one ranked hit as "[i] title — source — url\nsnippet"
// (§4.3 "Context block").
func contextEntryLine(index int, hit types.RankedHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s — %s — %s\n%s", index+1, hit.Payload.Title, hit.SourceID, hit.Payload.URL, hit.Payload.TextSnippet)
	return b.String()
}
