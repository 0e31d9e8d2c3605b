// Package vectorstore adapts the gateway's multi-source search contract
// (spec §2 item 2) onto a Qdrant-shaped HTTP vector database, generalizing
// the teacher's internal/memory/qdrant.Store from a single collection to
// one collection per SourceId (§14 Open Question resolution).
package vectorstore

import (
	"context"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Filter narrows a search to documents matching the given payload
// predicates (§2 item 2 "search(collection, vector, k, filter)").
type Filter map[string]string

// Client is the vector database adapter contract every source search uses.
type Client interface {
	// Search returns up to k hits from collection, ordered by descending
	// cosine similarity.
	Search(ctx context.Context, collection string, vector types.Vector, k int, filter Filter) ([]types.Hit, error)
	// Upsert writes or overwrites a document's vector and payload.
	Upsert(ctx context.Context, collection string, docID string, vector types.Vector, payload types.Payload) error
	// Ping verifies the store is reachable, for readiness checks (§13).
	Ping(ctx context.Context) error
}
