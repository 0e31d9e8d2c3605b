// Package responsebuilder assembles the LLM prompt from ranked hits,
// invokes the completion provider with retry and circuit-breaker
// protection, and builds the final answer object (spec §4.3).
package responsebuilder

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/helpdesk-ai/ragdesk/internal/llmclient"
	"github.com/helpdesk-ai/ragdesk/internal/observability"
	"github.com/helpdesk-ai/ragdesk/internal/resilience"
	"github.com/helpdesk-ai/ragdesk/internal/tokenizer"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Config holds the §4.3/§6 response-builder tuning knobs.
type Config struct {
	ContextTokenBudget int
	Temperature        float64
	Model              string
	Retry              RetryConfig
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		ContextTokenBudget: 2000,
		Temperature:        0.2,
		Retry:              DefaultRetryConfig(),
	}
}

// Builder composes prompts, invokes the LLM, and assembles answers.
type Builder struct {
	cfg     Config
	llm     llmclient.Client
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
}

// New builds a Builder guarded by a single LLM circuit breaker (§4.4: one
// breaker instance for the LLM collaborator). tracer starts a child span
// around the completion call (§13 span tree); pass nil to disable tracing.
func New(cfg Config, llm llmclient.Client, breaker *resilience.CircuitBreaker, tracer trace.Tracer) *Builder {
	return &Builder{cfg: cfg, llm: llm, breaker: breaker, tracer: tracer}
}

// Build assembles the prompt for hits under mode, invokes the LLM, and
// returns the final answer. cacheResult and partial are threaded through to
// Answer.Metrics by the caller (§4.5 step 5/6).
func (b *Builder) Build(ctx context.Context, question string, mode types.Mode, hits []types.RankedHit) (types.Answer, error) {
	contextBlock, citedHits := assembleContext(b.cfg.Model, b.cfg.ContextTokenBudget, hits)

	messages := []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: systemPrompt(mode, contextBlock != "")},
		{Role: llmclient.RoleUser, Content: buildUserMessage(question, contextBlock)},
	}
	params := llmclient.Params{
		Temperature: b.cfg.Temperature,
		MaxTokens:   maxTokensForMode(mode),
	}

	result, err := b.complete(ctx, messages, params)
	if err != nil {
		return types.Answer{}, err
	}

	return types.Answer{
		Text:      result.Text,
		Blocks:    buildBlocks(result.Text, citedHits),
		Citations: buildCitations(citedHits),
		Metrics: types.Metrics{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			SourcesUsed:      sourcesUsed(citedHits),
		},
	}, nil
}

// complete wraps the retrying LLM call in a child span when tracing is
// enabled (§13 span tree: "child spans for ... the LLM call").
func (b *Builder) complete(ctx context.Context, messages []llmclient.Message, params llmclient.Params) (llmclient.Result, error) {
	if b.tracer == nil {
		return callWithRetry(ctx, b.llm, b.breaker, messages, params, b.cfg.Retry)
	}
	spanCtx, span := observability.StartLLMSpan(ctx, b.tracer, b.cfg.Model)
	defer span.End()
	result, err := callWithRetry(spanCtx, b.llm, b.breaker, messages, params, b.cfg.Retry)
	if err != nil {
		observability.RecordError(span, err)
	}
	return result, err
}

func buildUserMessage(question, contextBlock string) string {
	if contextBlock == "" {
		return question
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)
}

// assembleContext serializes hits in descending rank order, truncating from
// the tail of the list and, within the last surviving hit, from the tail of
// its snippet, to honor the token budget (§4.3).
func assembleContext(model string, budgetTokens int, hits []types.RankedHit) (string, []types.RankedHit) {
	if len(hits) == 0 || budgetTokens <= 0 {
		return "", nil
	}

	var lines []string
	var included []types.RankedHit
	spent := 0

	for i, hit := range hits {
		line := contextEntryLine(i, hit)
		cost := tokenizer.CountTextTokens(model, line)

		if spent+cost <= budgetTokens {
			lines = append(lines, line)
			included = append(included, hit)
			spent += cost
			continue
		}

		remaining := budgetTokens - spent
		if remaining <= 0 {
			break
		}
		truncated := tokenizer.Truncate(model, line, remaining)
		if strings.TrimSpace(truncated) != "" {
			lines = append(lines, truncated)
			included = append(included, hit)
		}
		break
	}

	return strings.Join(lines, "\n\n"), included
}

func buildCitations(hits []types.RankedHit) []types.Citation {
	out := make([]types.Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.Citation{
			SourceID: h.SourceID,
			DocID:    h.DocID,
			Title:    h.Payload.Title,
			URL:      h.Payload.URL,
		})
	}
	return out
}

// buildBlocks renders the small structured chat-UI form: the answer body as
// one section, followed by a divider and a sources section when citations
// exist (§4.3 "small structured form (section/divider)").
func buildBlocks(answerText string, hits []types.RankedHit) []types.Block {
	blocks := []types.Block{{Kind: types.BlockSection, Text: answerText}}
	if len(hits) == 0 {
		return blocks
	}

	var sources strings.Builder
	sources.WriteString("Sources:")
	for i, h := range hits {
		fmt.Fprintf(&sources, "\n[%d] %s (%s)", i+1, h.Payload.Title, h.Payload.URL)
	}

	return append(blocks,
		types.Block{Kind: types.BlockDivider},
		types.Block{Kind: types.BlockSection, Text: sources.String()},
	)
}

func sourcesUsed(hits []types.RankedHit) []types.SourceID {
	seen := make(map[types.SourceID]bool, len(hits))
	var out []types.SourceID
	for _, h := range hits {
		if !seen[h.SourceID] {
			seen[h.SourceID] = true
			out = append(out, h.SourceID)
		}
	}
	return out
}
