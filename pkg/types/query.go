// Package types holds the gateway's data model (spec §3): queries, hits,
// cache statistics, and the answer shape returned to callers. Cache
// entries themselves live in internal/cache.
package types

import "time"

// Mode selects the prompt template and answer length (§3, §4.3).
type Mode string

const (
	ModeConcise  Mode = "concise"
	ModeDetailed Mode = "detailed"
)

// SourceID identifies a knowledge source drawn from the closed set declared
// at startup (§3). Each SourceID maps 1:1 to a vector-store collection.
type SourceID string

// Query is a single incoming question (§3, §6 POST /query body).
type Query struct {
	Text          string     `json:"text"`
	Tenant        string     `json:"tenant,omitempty"`
	Mode          Mode       `json:"mode,omitempty"`
	SourcesHint   []SourceID `json:"sources,omitempty"`
	AllowSemantic bool       `json:"allow_semantic,omitempty"`
	RequestedAt   time.Time  `json:"-"`
}

// Vector is a unit-norm floating-point embedding of fixed dimension D (§3).
type Vector []float32
