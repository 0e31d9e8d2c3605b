package llmclient

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	gwerrors "github.com/helpdesk-ai/ragdesk/pkg/errors"
)

// Provider selects the wire shape used to talk to the completion
// collaborator (§6 llm.provider ∈ {A, B}).
type Provider string

const (
	ProviderA Provider = "A" // OpenAI-chat-compatible {messages, ...} -> {choices[], usage}
	ProviderB Provider = "B" // {prompt, ...} -> {completion, usage}
)

// HTTPConfig configures the LLM HTTP adapter (§6 llm.*).
type HTTPConfig struct {
	Provider        Provider
	Model           string
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	MaxConnsPerHost int
}

// HTTPClient wraps a single HTTP completion provider behind Client.
type HTTPClient struct {
	http     *http.Client
	provider Provider
	model    string
	apiKey   string
	baseURL  string
}

// NewHTTPClient builds an LLM client for the configured provider shape.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	maxConns := cfg.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 32
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPClient{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     maxConns,
				MaxIdleConnsPerHost: maxConns,
			},
		},
		provider: cfg.Provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
	}
}

// Complete implements Client.Complete for a single attempt; retry policy
// lives in internal/responsebuilder per §4.3.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message, params Params) (Result, error) {
	switch c.provider {
	case ProviderB:
		return c.completeProviderB(ctx, messages, params)
	default:
		return c.completeProviderA(ctx, messages, params)
	}
}

func (c *HTTPClient) completeProviderA(ctx context.Context, messages []Message, params Params) (Result, error) {
	wireMessages := make([]map[string]string, len(messages))
	for i, m := range messages {
		wireMessages[i] = map[string]string{"role": string(m.Role), "content": m.Content}
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    wireMessages,
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := c.post(ctx, "/v1/chat/completions", body, &decoded); err != nil {
		return Result{}, err
	}
	if len(decoded.Choices) == 0 {
		return Result{}, gwerrors.NewUnavailable("llm provider returned no choices", nil)
	}

	return Result{
		Text:             decoded.Choices[0].Message.Content,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}, nil
}

func (c *HTTPClient) completeProviderB(ctx context.Context, messages []Message, params Params) (Result, error) {
	var prompt bytes.Buffer
	for _, m := range messages {
		prompt.WriteString(string(m.Role))
		prompt.WriteString(": ")
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}

	body := map[string]any{
		"model":       c.model,
		"prompt":      prompt.String(),
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
	}

	var decoded struct {
		Completion   string `json:"completion"`
		PromptTokens int    `json:"prompt_tokens"`
		OutputTokens int    `json:"output_tokens"`
	}

	if err := c.post(ctx, "/v1/complete", body, &decoded); err != nil {
		return Result{}, err
	}

	return Result{
		Text:             decoded.Completion,
		PromptTokens:     decoded.PromptTokens,
		CompletionTokens: decoded.OutputTokens,
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return gwerrors.NewInternal("marshal llm request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return gwerrors.NewInternal("build llm request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gwerrors.NewTimeout("llm request timed out", err)
		}
		return gwerrors.NewUnavailable("llm provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return gwerrors.FromHTTPStatus(resp.StatusCode, "llm provider returned an error", nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gwerrors.NewInternal("decode llm response", err)
	}
	return nil
}

// Ping verifies the LLM provider is reachable (§13 readiness).
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return gwerrors.NewInternal("build llm ping request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return gwerrors.NewUnavailable("llm provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return gwerrors.FromHTTPStatus(resp.StatusCode, "llm ping failed", nil)
	}
	return nil
}
