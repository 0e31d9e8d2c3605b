// Package llmclient wraps an external completion provider (spec §2 item 3),
// generalizing the teacher's per-vendor provider.Provider contract down to
// the two adapter shapes this spec actually exercises (llm.provider ∈
// {A, B}, §14 Open Question resolution).
package llmclient

import "context"

// Role is a chat message role.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one turn of the prompt sent to the LLM (§4.3).
type Message struct {
	Role    Role
	Content string
}

// Params configures a single completion call (§4.3).
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Result is the LLM's response plus the token counts it reported, which
// are authoritative for token-economy accounting (§14 Open Question
// resolution).
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client wraps a single completion provider.
type Client interface {
	Complete(ctx context.Context, messages []Message, params Params) (Result, error)
	// Ping verifies the LLM provider is reachable (§13 readiness).
	Ping(ctx context.Context) error
}
