// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for
// zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceID identifies a knowledge source (ticket system, wiki, ERP/CRM
// knowledge base). Each SourceID maps 1:1 to a vector-store collection.
type SourceID string

// Config represents the complete gateway configuration (spec.md §6).
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Tracing     TracingConfig      `yaml:"tracing"`
	Embedding   EmbeddingConfig    `yaml:"embedding"`
	VectorStore VectorStoreConfig  `yaml:"vector_store"`
	LLM         LLMConfig          `yaml:"llm"`
	Cache       CacheConfig        `yaml:"cache"`
	Pipeline    PipelineConfig     `yaml:"pipeline"`
	Breaker     BreakerConfig      `yaml:"breaker"`
	Sources     map[SourceID]SourceConfig `yaml:"sources"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// EmbeddingConfig configures the embedding client (spec.md §6).
type EmbeddingConfig struct {
	Dim         int    `yaml:"dim"`
	ProviderURL string `yaml:"provider_url"`
	APIKey      string `yaml:"api_key"`
	CacheSize   int    `yaml:"cache_size"` // text->vector LRU size
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// VectorStoreConfig configures the vector database adapter (spec.md §6).
type VectorStoreConfig struct {
	URL         string              `yaml:"url"`
	APIKey      string              `yaml:"api_key"`
	Collections map[SourceID]string `yaml:"collections"`
}

// LLMConfig configures the completion provider (spec.md §6).
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "A" or "B"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// CacheConfig configures the semantic cache (spec.md §4.1, §6).
type CacheConfig struct {
	MaxEntries       int           `yaml:"max_entries"`
	MaxBytes         int64         `yaml:"max_bytes"`
	TTLBaseSeconds   int64         `yaml:"ttl_base_seconds"`
	Semantic         SemanticConfig `yaml:"semantic"`
	RingSize         int           `yaml:"ring_size"`
	AdaptiveTTLAlpha float64       `yaml:"adaptive_ttl_alpha"`
	AdaptiveTTLCap   int           `yaml:"adaptive_ttl_cap"` // H
	EvictWeightHits  float64       `yaml:"evict_weight_hits"`
	EvictWeightSpend float64       `yaml:"evict_weight_spend"`
	EvictWeightAge   float64       `yaml:"evict_weight_age"`
	Mirror           MirrorConfig  `yaml:"mirror"`
}

// SemanticConfig configures semantic (approximate) cache lookups.
type SemanticConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseThreshold  float64 `yaml:"base_threshold"`
	MinThreshold   float64 `yaml:"min_threshold"`
	MaxThreshold   float64 `yaml:"max_threshold"`
	KBoost         float64 `yaml:"k_boost"`
}

// MirrorConfig configures the optional external key-value mirror.
type MirrorConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	Namespace  string        `yaml:"namespace"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// PipelineConfig configures the query engine / orchestrator (spec.md §6).
type PipelineConfig struct {
	TopKPerSource       int `yaml:"top_k_per_source"`
	TopKGlobal          int `yaml:"top_k_global"`
	DeadlineMs          int `yaml:"deadline_ms"`
	PerSourceTimeoutMs  int `yaml:"per_source_timeout_ms"`
	MaxConcurrentSources int `yaml:"max_concurrent_sources"`
	ContextTokenBudget  int `yaml:"context_token_budget"`
}

// BreakerConfig configures per-source / per-LLM circuit breakers (spec.md §4.4, §6).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           int           `yaml:"window"`
	FailureRate      float64       `yaml:"failure_rate"`
	CoolDownMs       int           `yaml:"cool_down_ms"`
	CoolDownMaxMs    int           `yaml:"cool_down_max_ms"`
}

// SourceConfig holds per-source tuning: weighting and which clients are
// routed to it. TimeoutMs is parsed but not applied: every source search
// uses Pipeline.PerSourceTimeoutMs.
type SourceConfig struct {
	Weight      float64  `yaml:"weight"`
	TimeoutMs   int      `yaml:"timeout_ms"`
	ClientNames []string `yaml:"client_names"` // keyword matches that route to this source
}

// DefaultConfig returns sensible defaults matching spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ragdesk-gateway",
			SampleRate:  0.1,
		},
		Embedding: EmbeddingConfig{
			Dim:       1536,
			CacheSize: 2048,
			TimeoutMs: 5000,
		},
		VectorStore: VectorStoreConfig{
			Collections: map[SourceID]string{},
		},
		LLM: LLMConfig{
			Provider:  "A",
			TimeoutMs: 20000,
		},
		Cache: CacheConfig{
			MaxEntries:     10000,
			MaxBytes:       256 * 1024 * 1024,
			TTLBaseSeconds: 3600,
			RingSize:       256,
			Semantic: SemanticConfig{
				Enabled:       true,
				BaseThreshold: 0.88,
				MinThreshold:  0.78,
				MaxThreshold:  0.95,
				KBoost:        0.01,
			},
			AdaptiveTTLAlpha: 0.1,
			AdaptiveTTLCap:   20,
			EvictWeightHits:  1.0,
			EvictWeightSpend: 0.001,
			EvictWeightAge:   0.0005,
		},
		Pipeline: PipelineConfig{
			TopKPerSource:        10,
			TopKGlobal:           8,
			DeadlineMs:           25000,
			PerSourceTimeoutMs:   4000,
			MaxConcurrentSources: 6,
			ContextTokenBudget:   2000,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Window:           20,
			FailureRate:      0.5,
			CoolDownMs:       30000,
			CoolDownMaxMs:    300000,
		},
		Sources: map[SourceID]SourceConfig{},
	}
}

// LoadFromFile reads and parses a YAML configuration file. Environment
// variables in the form ${VAR_NAME} are expanded before parsing. Unknown
// top-level fields are a startup error (closed configuration record).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive")
	}
	switch c.LLM.Provider {
	case "A", "B":
	default:
		return fmt.Errorf("llm.provider must be one of: A, B")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache.max_bytes must be positive")
	}
	sc := c.Cache.Semantic
	if sc.Enabled {
		if !(0 < sc.MinThreshold && sc.MinThreshold <= sc.BaseThreshold && sc.BaseThreshold <= sc.MaxThreshold && sc.MaxThreshold <= 1) {
			return fmt.Errorf("cache.semantic thresholds must satisfy 0 < min <= base <= max <= 1")
		}
	}
	if c.Pipeline.TopKGlobal <= 0 || c.Pipeline.TopKPerSource <= 0 {
		return fmt.Errorf("pipeline.top_k_per_source and top_k_global must be positive")
	}
	if c.Pipeline.MaxConcurrentSources <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_sources must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.Window <= 0 {
		return fmt.Errorf("breaker.failure_threshold and breaker.window must be positive")
	}
	if c.Breaker.FailureRate <= 0 || c.Breaker.FailureRate > 1 {
		return fmt.Errorf("breaker.failure_rate must be in (0,1]")
	}
	for sourceID, name := range c.VectorStore.Collections {
		if name == "" {
			return fmt.Errorf("vector_store.collections[%s]: collection name is required", sourceID)
		}
	}
	return nil
}
