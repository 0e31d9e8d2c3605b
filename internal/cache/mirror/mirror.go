// Package mirror implements the optional external key-value mirror of
// cache entries (spec.md §6 "Persisted state": "An optional mirror of
// cache entries to a key-value service is allowed; on restart, entries are
// re-validated (expiry check) before serving").
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Snapshot is the serializable projection of a cache.Entry. cache.Entry
// itself carries unexported synchronization fields and can't be marshaled
// directly, so the cache package converts to/from Snapshot at the mirror
// boundary.
type Snapshot struct {
	Key              string       `json:"key"`
	Embedding        types.Vector `json:"embedding,omitempty"`
	Value            types.Answer `json:"value"`
	TokensValue      int          `json:"tokens_value"`
	CreatedAt        time.Time    `json:"created_at"`
	LastAccessAt     time.Time    `json:"last_access_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
	HitCount         uint64       `json:"hit_count"`
	TTLBaseSeconds   float64      `json:"ttl_base_seconds"`
	SemanticEligible bool         `json:"semantic_eligible"`
}

// Config configures the Redis mirror connection (§6, §11 domain stack).
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// Mirror is a best-effort external key-value mirror of the in-memory
// cache. Failures to read or write the mirror never fail the pipeline
// (§7 "cache write failure -> return answer anyway").
type Mirror struct {
	client    goredis.UniversalClient
	namespace string
}

// New connects to Redis (or a compatible server, e.g. miniredis in tests).
func New(cfg Config) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("mirror: redis ping failed: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "ragdesk:cache"
	}

	return &Mirror{client: client, namespace: namespace}, nil
}

func (m *Mirror) prefixedKey(key string) string {
	return m.namespace + ":" + key
}

// Save writes a snapshot with a TTL matching its remaining lifetime, so an
// already-expired entry simply never reappears.
func (m *Mirror) Save(ctx context.Context, snap Snapshot) error {
	ttl := time.Until(snap.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mirror: marshal snapshot: %w", err)
	}

	return m.client.Set(ctx, m.prefixedKey(snap.Key), payload, ttl).Err()
}

// Load fetches a snapshot by fingerprint. A missing key is not an error;
// ok is false.
func (m *Mirror) Load(ctx context.Context, key string) (Snapshot, bool, error) {
	raw, err := m.client.Get(ctx, m.prefixedKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("mirror: get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("mirror: unmarshal snapshot: %w", err)
	}

	// Re-validate expiry on restore (§6): the mirror's own TTL should have
	// already evicted it, but a clock-skewed restore is still possible.
	if !snap.ExpiresAt.After(time.Now()) {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Delete removes a mirrored entry, e.g. on explicit invalidation.
func (m *Mirror) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.prefixedKey(key)).Err()
}

// Ping verifies the mirror is reachable (§13 readiness, when configured).
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
