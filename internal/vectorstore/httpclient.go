package vectorstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	gwerrors "github.com/helpdesk-ai/ragdesk/pkg/errors"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// HTTPConfig configures the HTTP adapter (§6 vector_store.*).
type HTTPConfig struct {
	URL             string
	APIKey          string
	Timeout         time.Duration
	MaxConnsPerHost int // P_conn, default 32 (§5)
	RequestsPerSec  float64
}

// HTTPClient is a Qdrant-shaped HTTP vector store adapter (§2 item 2),
// grounded on the teacher's internal/memory/qdrant.Store.
type HTTPClient struct {
	http    *http.Client
	apiBase string
	apiKey  string
	limiter *rate.Limiter
}

// NewHTTPClient builds a client sharing one connection pool across all
// collections, capped at P_conn per target (§5).
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	address := cfg.URL
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	maxConns := cfg.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 32
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec))
	}

	return &HTTPClient{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     maxConns,
				MaxIdleConnsPerHost: maxConns,
			},
		},
		apiBase: address,
		apiKey:  cfg.APIKey,
		limiter: limiter,
	}
}

func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

// Search implements Client.Search against Qdrant's points/search endpoint.
func (c *HTTPClient) Search(ctx context.Context, collection string, vector types.Vector, k int, filter Filter) ([]types.Hit, error) {
	if err := c.wait(ctx); err != nil {
		return nil, gwerrors.NewTimeout("vector store rate limiter wait", err)
	}

	must := make([]map[string]any, 0, len(filter))
	for key, value := range filter {
		must = append(must, map[string]any{"key": "payload." + key, "match": map[string]any{"value": value}})
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(must) > 0 {
		body["filter"] = map[string]any{"must": must}
	}

	resp, err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", collection), body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, gwerrors.NewInternal("decode vector store search response", err)
	}

	hits := make([]types.Hit, 0, len(result.Result))
	for _, r := range result.Result {
		hits = append(hits, types.Hit{
			SourceID: types.SourceID(collection),
			DocID:    r.ID,
			Score:    r.Score,
			Payload:  payloadFromMap(r.Payload),
		})
	}
	return hits, nil
}

// Upsert implements Client.Upsert.
func (c *HTTPClient) Upsert(ctx context.Context, collection string, docID string, vector types.Vector, payload types.Payload) error {
	if err := c.wait(ctx); err != nil {
		return gwerrors.NewTimeout("vector store rate limiter wait", err)
	}

	point := map[string]any{
		"id":     docID,
		"vector": vector,
		"payload": map[string]any{
			"title":        payload.Title,
			"url":          payload.URL,
			"text_snippet": payload.TextSnippet,
			"updated_at":   payload.UpdatedAt,
		},
	}
	body := map[string]any{"points": []any{point}}

	resp, err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", collection), body)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// Ping verifies the vector store's base URL responds (§13 readiness).
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/collections", http.NoBody)
	if err != nil {
		return gwerrors.NewInternal("build vector store ping request", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return gwerrors.NewUnavailable("vector store unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return gwerrors.FromHTTPStatus(resp.StatusCode, "vector store ping failed", nil)
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, gwerrors.NewInternal("marshal vector store request", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, gwerrors.NewInternal("build vector store request", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gwerrors.NewTimeout("vector store request timed out", err)
		}
		return nil, gwerrors.NewUnavailable("vector store request failed", err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, gwerrors.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("vector store returned %d: %s", resp.StatusCode, string(respBody)), nil)
	}
	return resp, nil
}

func payloadFromMap(m map[string]any) types.Payload {
	get := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	return types.Payload{
		Title:       get("title"),
		URL:         get("url"),
		TextSnippet: get("text_snippet"),
		UpdatedAt:   get("updated_at"),
	}
}
