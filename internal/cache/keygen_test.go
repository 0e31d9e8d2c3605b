package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

func TestFingerprint_Deterministic(t *testing.T) {
	q1 := types.Query{Text: "How do I reset my password?", Mode: types.ModeConcise, Tenant: "acme"}
	q2 := types.Query{Text: "how do i reset my password?", Mode: types.ModeConcise, Tenant: "acme"}

	assert.Equal(t, Fingerprint(q1), Fingerprint(q2))
}

func TestFingerprint_DiffersByMode(t *testing.T) {
	q1 := types.Query{Text: "same text", Mode: types.ModeConcise, Tenant: "acme"}
	q2 := types.Query{Text: "same text", Mode: types.ModeDetailed, Tenant: "acme"}

	assert.NotEqual(t, Fingerprint(q1), Fingerprint(q2))
}

func TestFingerprint_DiffersByTenant(t *testing.T) {
	q1 := types.Query{Text: "same text", Mode: types.ModeConcise, Tenant: "acme"}
	q2 := types.Query{Text: "same text", Mode: types.ModeConcise, Tenant: "globex"}

	assert.NotEqual(t, Fingerprint(q1), Fingerprint(q2))
}

func TestFingerprint_TrimsSurroundingWhitespace(t *testing.T) {
	q1 := types.Query{Text: "  trimmed text  ", Mode: types.ModeConcise}
	q2 := types.Query{Text: "trimmed text", Mode: types.ModeConcise}

	assert.Equal(t, Fingerprint(q1), Fingerprint(q2))
}
