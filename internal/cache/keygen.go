package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

const fingerprintSeparator = "\x1F"

// Fingerprint computes the exact cache key (§4.1): sha256 of the
// lowercased, NFKC-normalized, whitespace-stripped question text, the
// mode, and the tenant, joined by \x1F.
func Fingerprint(q types.Query) string {
	normalized := normalizeText(q.Text)

	var sb strings.Builder
	sb.WriteString(normalized)
	sb.WriteString(fingerprintSeparator)
	sb.WriteString(string(q.Mode))
	sb.WriteString(fingerprintSeparator)
	sb.WriteString(q.Tenant)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// normalizeText applies strip -> NFKC -> lowercase, in that order, matching
// spec.md's `lowercase(nfkc(strip(text)))`.
func normalizeText(text string) string {
	stripped := strings.TrimSpace(text)
	folded := norm.NFKC.String(stripped)
	return strings.ToLower(folded)
}
