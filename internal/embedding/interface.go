// Package embedding turns text into fixed-dimension unit-normalized
// vectors via an external provider (spec §2 item 1), with a small
// text->vector LRU in front of the network call.
package embedding

import (
	"context"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Client embeds text into a unit-norm vector.
type Client interface {
	Embed(ctx context.Context, text string) (types.Vector, error)
	// Ping verifies the embedding provider is reachable (§13 readiness).
	Ping(ctx context.Context) error
}
