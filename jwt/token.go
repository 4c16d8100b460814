package jwt

import (
	"strings"
	"time"
)

// Token is a decoded compact token: header, claims, signature, and the exact string it
// came from.
type Token struct {
	Header    map[string]any
	Claims    Claims
	Signature []byte
	raw       string
}

// String returns the compact serialization.
func (t *Token) String() string {
	if t == nil {
		return ""
	}
	return t.raw
}

// SigningInput returns the header and claims segments covered by the signature.
func (t *Token) SigningInput() string {
	if t == nil {
		return ""
	}
	idx := strings.LastIndexByte(t.raw, '.')
	if idx < 0 {
		return ""
	}
	return t.raw[:idx]
}

// Algorithm returns the alg header.
func (t *Token) Algorithm() string {
	if t == nil {
		return ""
	}
	alg, _ := t.Header["alg"].(string)
	return alg
}

// ID returns the jti claim.
func (t *Token) ID() string {
	if t == nil {
		return ""
	}
	return t.Claims.ID
}

// Type returns the typ claim.
func (t *Token) Type() TokenType {
	if t == nil {
		return ""
	}
	return t.Claims.Type()
}

// Group returns the grp claim.
func (t *Token) Group() string {
	if t == nil {
		return ""
	}
	return t.Claims.Group()
}

// IsExpired reports whether exp is set and lies before now.
func (t *Token) IsExpired(now time.Time) bool {
	if t == nil || t.Claims.ExpiresAt.IsZero() {
		return false
	}
	return now.After(t.Claims.ExpiresAt)
}

// Equal reports whether both tokens serialize to the same compact string.
func (t *Token) Equal(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.raw == other.raw
}

func cloneHeader(h map[string]any) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
