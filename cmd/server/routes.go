package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/helpdesk-ai/ragdesk/internal/cache"
	"github.com/helpdesk-ai/ragdesk/internal/embedding"
	"github.com/helpdesk-ai/ragdesk/internal/llmclient"
	"github.com/helpdesk-ai/ragdesk/internal/orchestrator"
	"github.com/helpdesk-ai/ragdesk/internal/vectorstore"
	gwerrors "github.com/helpdesk-ai/ragdesk/pkg/errors"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// queryRequest is the POST /query wire shape (§6 "Input API").
type queryRequest struct {
	Text          string           `json:"text"`
	Mode          types.Mode       `json:"mode"`
	Sources       []types.SourceID `json:"sources"`
	Tenant        string           `json:"tenant"`
	AllowSemantic *bool            `json:"allow_semantic"`
}

// invalidateRequest is the POST /invalidate wire shape: either a single
// exact key, or a predicate description matched against cache entry keys.
type invalidateRequest struct {
	Key    string `json:"key"`
	Prefix string `json:"predicate"`
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

func registerRoutes(mux *http.ServeMux, orch *orchestrator.Orchestrator, cacheStore *cache.Store, embedder embedding.Client, store vectorstore.Client, llm llmclient.Client, logger *slog.Logger) {
	mux.HandleFunc("POST /query", handleQuery(orch, logger))
	mux.HandleFunc("GET /stats", handleStats(cacheStore))
	mux.HandleFunc("POST /invalidate", handleInvalidate(cacheStore, logger))
	mux.HandleFunc("GET /health", handleHealth())
	mux.HandleFunc("GET /ready", handleReady(embedder, store, llm))
}

func handleQuery(orch *orchestrator.Orchestrator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, gwerrors.NewBadRequest("malformed request body"))
			return
		}
		if req.Text == "" {
			writeError(w, gwerrors.NewBadRequest("text is required"))
			return
		}

		mode := req.Mode
		if mode == "" {
			mode = types.ModeConcise
		}
		allowSemantic := true
		if req.AllowSemantic != nil {
			allowSemantic = *req.AllowSemantic
		}

		query := types.Query{
			Text:          req.Text,
			Tenant:        req.Tenant,
			Mode:          mode,
			SourcesHint:   req.Sources,
			AllowSemantic: allowSemantic,
			RequestedAt:   time.Now(),
		}

		answer, err := orch.Handle(r.Context(), query)
		if err != nil {
			logger.Error("query pipeline failed", "error", err, "tenant", req.Tenant)
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, answer)
	}
}

func handleStats(cacheStore *cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cacheStore.Stats())
	}
}

func handleInvalidate(cacheStore *cache.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invalidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, gwerrors.NewBadRequest("malformed request body"))
			return
		}

		var removed int
		switch {
		case req.Key != "":
			removed = cacheStore.InvalidateKey(req.Key)
		case req.Prefix != "":
			removed = cacheStore.Invalidate(func(e *cache.Entry) bool {
				return matchesPredicate(e, req.Prefix)
			})
		default:
			writeError(w, gwerrors.NewBadRequest("key or predicate is required"))
			return
		}

		logger.Info("cache invalidation", "removed", removed)
		writeJSON(w, http.StatusOK, invalidateResponse{Removed: removed})
	}
}

func matchesPredicate(e *cache.Entry, prefix string) bool {
	return len(e.Key) >= len(prefix) && e.Key[:len(prefix)] == prefix
}

// handleHealth reports pure liveness: the process is accepting connections.
// It never checks downstream adapters (§6, §13).
func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// handleReady reports readiness: every required adapter must answer Ping
// within a short budget (§6 "GET /ready → readiness (all required adapters
// pingable)").
func handleReady(embedder embedding.Client, store vectorstore.Client, llm llmclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := embedder.Ping(ctx); err != nil {
			writeReadyError(w, "embedding", err)
			return
		}
		if err := store.Ping(ctx); err != nil {
			writeReadyError(w, "vector_store", err)
			return
		}
		if err := llm.Ping(ctx); err != nil {
			writeReadyError(w, "llm", err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeReadyError(w http.ResponseWriter, adapter string, err error) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"adapter": adapter,
		"error":   err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var gerr *gwerrors.GatewayError
	if errors.As(err, &gerr) {
		writeJSON(w, gerr.HTTPStatusCode(), map[string]string{"error": gerr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
