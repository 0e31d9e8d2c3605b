package embedding

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	gwerrors "github.com/helpdesk-ai/ragdesk/pkg/errors"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// HTTPConfig configures the embedding HTTP adapter (§6 embedding.*).
type HTTPConfig struct {
	ProviderURL     string
	APIKey          string
	Dim             int
	Timeout         time.Duration
	CacheSize       int
	MaxConnsPerHost int
	RequestsPerSec  float64
}

// HTTPClient wraps an external embedding provider behind the Client
// interface, unit-normalizing every vector it returns (§3 invariant).
type HTTPClient struct {
	http    *http.Client
	url     string
	apiKey  string
	dim     int
	cache   *textVectorLRU
	limiter *rate.Limiter
}

// NewHTTPClient builds an embedding client with its own text->vector LRU.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	maxConns := cfg.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 32
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
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
		url:     cfg.ProviderURL,
		apiKey:  cfg.APIKey,
		dim:     cfg.Dim,
		cache:   newTextVectorLRU(cfg.CacheSize),
		limiter: limiter,
	}
}

// Embed implements Client.Embed, checking the local LRU before calling out.
func (c *HTTPClient) Embed(ctx context.Context, text string) (types.Vector, error) {
	if cached, ok := c.cache.Get(text); ok {
		return cached, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, gwerrors.NewTimeout("embedding rate limiter wait", err)
		}
	}

	vec, err := c.call(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Put(text, vec)
	return vec, nil
}

func (c *HTTPClient) call(ctx context.Context, text string) (types.Vector, error) {
	reqBody, err := json.Marshal(map[string]any{"input": text})
	if err != nil {
		return nil, gwerrors.NewInternal("marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, gwerrors.NewInternal("build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gwerrors.NewTimeout("embedding request timed out", err)
		}
		return nil, gwerrors.NewUnavailable("embedding provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, gwerrors.FromHTTPStatus(resp.StatusCode, "embedding provider returned an error", nil)
	}

	var decoded struct {
		Vector []float32 `json:"vector"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, gwerrors.NewInternal("decode embedding response", err)
	}
	if c.dim > 0 && len(decoded.Vector) != c.dim {
		return nil, gwerrors.NewInternal("embedding dimension mismatch", nil)
	}

	return normalize(decoded.Vector), nil
}

// Ping verifies the embedding provider is reachable (§13 readiness).
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return gwerrors.NewInternal("build embedding ping request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return gwerrors.NewUnavailable("embedding provider unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return gwerrors.FromHTTPStatus(resp.StatusCode, "embedding ping failed", nil)
	}
	return nil
}

// normalize scales v to unit L2 norm (§3 invariant: ‖v‖₂ = 1 ± 1e-6).
func normalize(v []float32) types.Vector {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return types.Vector(v)
	}
	out := make(types.Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
