// Package main is the entry point for the ragdesk gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helpdesk-ai/ragdesk/internal/cache"
	"github.com/helpdesk-ai/ragdesk/internal/cache/mirror"
	"github.com/helpdesk-ai/ragdesk/internal/config"
	"github.com/helpdesk-ai/ragdesk/internal/embedding"
	"github.com/helpdesk-ai/ragdesk/internal/llmclient"
	"github.com/helpdesk-ai/ragdesk/internal/observability"
	"github.com/helpdesk-ai/ragdesk/internal/orchestrator"
	"github.com/helpdesk-ai/ragdesk/internal/queryengine"
	"github.com/helpdesk-ai/ragdesk/internal/resilience"
	"github.com/helpdesk-ai/ragdesk/internal/responsebuilder"
	"github.com/helpdesk-ai/ragdesk/internal/sources"
	"github.com/helpdesk-ai/ragdesk/internal/vectorstore"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Exit codes for the CLI launcher (§6).
const (
	exitOK                 = 0
	exitBadConfig          = 2
	exitAdapterUnreachable = 3
	exitPortInUse          = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfgManager, err := config.NewManager(*configPath, slog.Default())
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return exitBadConfig
	}
	cfg := cfgManager.Get()

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)
	logger.Info("starting ragdesk gateway", "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if watchErr := cfgManager.Watch(ctx); watchErr != nil {
		logger.Warn("config hot-reload disabled", "error", watchErr)
	}

	tracerProvider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing, continuing untraced", "error", err)
		tracerProvider, _ = observability.InitTracing(ctx, observability.TracingConfig{Enabled: false})
	}

	embedder := embedding.NewHTTPClient(embedding.HTTPConfig{
		ProviderURL:    cfg.Embedding.ProviderURL,
		APIKey:         cfg.Embedding.APIKey,
		Dim:            cfg.Embedding.Dim,
		Timeout:        time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond,
		CacheSize:      cfg.Embedding.CacheSize,
		RequestsPerSec: 0,
	})

	vectorStore := vectorstore.NewHTTPClient(vectorstore.HTTPConfig{
		URL:     cfg.VectorStore.URL,
		APIKey:  cfg.VectorStore.APIKey,
		Timeout: time.Duration(cfg.Pipeline.PerSourceTimeoutMs) * time.Millisecond,
	})

	llmProvider := llmclient.ProviderA
	if cfg.LLM.Provider == "B" {
		llmProvider = llmclient.ProviderB
	}
	llm := llmclient.NewHTTPClient(llmclient.HTTPConfig{
		Provider: llmProvider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond,
	})

	if adapterErr := pingAdapters(ctx, embedder, vectorStore, llm); adapterErr != nil {
		logger.Error("adapter unreachable at startup", "error", adapterErr)
		return exitAdapterUnreachable
	}

	registry, matcher := buildSourceRegistry(cfg)
	breakerCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           cfg.Breaker.Window,
		FailureRate:      cfg.Breaker.FailureRate,
		CoolDown:         time.Duration(cfg.Breaker.CoolDownMs) * time.Millisecond,
		CoolDownMax:      time.Duration(cfg.Breaker.CoolDownMaxMs) * time.Millisecond,
	}

	tracer := tracerProvider.Tracer()

	engine := queryengine.New(queryengine.Config{
		TopKPerSource:      cfg.Pipeline.TopKPerSource,
		TopKGlobal:         cfg.Pipeline.TopKGlobal,
		PerSourceTimeout:   time.Duration(cfg.Pipeline.PerSourceTimeoutMs) * time.Millisecond,
		OverallDeadline:    time.Duration(cfg.Pipeline.DeadlineMs) * time.Millisecond,
		MaxConcurrentTasks: cfg.Pipeline.MaxConcurrentSources,
	}, registry, matcher, vectorStore, embedder, breakerCfg, logger, tracer)

	llmBreaker := resilience.NewCircuitBreaker("llm", breakerCfg)
	llmBreaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		logger.Info("circuit breaker transition", "breaker", name, "from", from, "to", to)
	})
	builder := responsebuilder.New(responsebuilder.Config{
		ContextTokenBudget: cfg.Pipeline.ContextTokenBudget,
		Temperature:        0.2,
		Model:              cfg.LLM.Model,
		Retry:              responsebuilder.DefaultRetryConfig(),
	}, llm, llmBreaker, tracer)

	cacheStore := cache.NewStore(cache.Config{
		MaxEntries:       cfg.Cache.MaxEntries,
		MaxBytes:         cfg.Cache.MaxBytes,
		TTLBase:          time.Duration(cfg.Cache.TTLBaseSeconds) * time.Second,
		SemanticEnabled:  cfg.Cache.Semantic.Enabled,
		BaseThreshold:    cfg.Cache.Semantic.BaseThreshold,
		MinThreshold:     cfg.Cache.Semantic.MinThreshold,
		MaxThreshold:     cfg.Cache.Semantic.MaxThreshold,
		KBoost:           cfg.Cache.Semantic.KBoost,
		Alpha:            cfg.Cache.AdaptiveTTLAlpha,
		HitCountCap:      uint64(cfg.Cache.AdaptiveTTLCap),
		RingSize:         cfg.Cache.RingSize,
		UtilityWeightHit: cfg.Cache.EvictWeightHits,
		UtilityWeightTok: cfg.Cache.EvictWeightSpend,
		UtilityWeightAge: cfg.Cache.EvictWeightAge,
	}, embedder, logger)

	if cfg.Cache.Mirror.Enabled {
		m, mirrorErr := mirror.New(mirror.Config{
			Addr:      cfg.Cache.Mirror.Addr,
			Password:  cfg.Cache.Mirror.Password,
			DB:        cfg.Cache.Mirror.DB,
			Namespace: cfg.Cache.Mirror.Namespace,
		})
		if mirrorErr != nil {
			logger.Warn("cache mirror unavailable, continuing without it", "error", mirrorErr)
		} else {
			cacheStore.SetMirror(m)
			logger.Info("cache mirror enabled", "addr", cfg.Cache.Mirror.Addr)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Deadline: time.Duration(cfg.Pipeline.DeadlineMs) * time.Millisecond,
	}, cacheStore, engine, builder, embedder, logger, tracer)

	server := buildHTTPServer(cfg, orch, cacheStore, embedder, vectorStore, llm, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if listenErr := server.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			serverErr <- listenErr
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server...")
	case listenErr, ok := <-serverErr:
		if ok {
			if isAddrInUse(listenErr) {
				logger.Error("server port already in use", "port", cfg.Server.Port, "error", listenErr)
				return exitPortInUse
			}
			logger.Error("server error", "error", listenErr)
			return exitAdapterUnreachable
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown error", "error", shutdownErr)
	}
	if tracerProvider != nil {
		if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("tracer shutdown error", "error", shutdownErr)
		}
	}
	_ = cfgManager.Close()

	logger.Info("server stopped")
	return exitOK
}

func pingAdapters(ctx context.Context, embedder embedding.Client, store vectorstore.Client, llm llmclient.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := embedder.Ping(pingCtx); err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}
	if err := store.Ping(pingCtx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if err := llm.Ping(pingCtx); err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	return nil
}

// buildSourceRegistry converts the config's per-source weighting and
// client-keyword routing into a sources.Registry and sources.ClientMatcher
// (§4.2). A source is enabled when it has a configured vector-store
// collection; config.SourceID and types.SourceID are distinct string types
// so each key is converted explicitly at this boundary.
func buildSourceRegistry(cfg *config.Config) (*sources.Registry, *sources.ClientMatcher) {
	var configs []sources.Config
	clientNames := make(map[string][]types.SourceID)

	for id, collection := range cfg.VectorStore.Collections {
		sourceID := types.SourceID(string(id))
		sourceCfg := cfg.Sources[id]

		weight := sourceCfg.Weight
		if weight == 0 {
			weight = 1.0
		}
		configs = append(configs, sources.Config{
			ID:         sourceID,
			Collection: collection,
			Weight:     weight,
			Enabled:    true,
		})

		for _, keyword := range sourceCfg.ClientNames {
			clientNames[keyword] = append(clientNames[keyword], sourceID)
		}
	}

	return sources.NewRegistry(configs), sources.NewClientMatcher(clientNames)
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func buildHTTPServer(cfg *config.Config, orch *orchestrator.Orchestrator, cacheStore *cache.Store, embedder embedding.Client, store vectorstore.Client, llm llmclient.Client, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	registerRoutes(mux, orch, cacheStore, embedder, store, llm, logger)

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = requestLoggingMiddleware(logger)(handler)
	handler = observability.RequestIDMiddleware(handler)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
