package jwt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates access tokens from refresh tokens through the typ claim.
type TokenType string

const (
	// TypeAccess marks a token that authorizes API calls.
	TypeAccess TokenType = "access"
	// TypeRefresh marks a token that can only be exchanged for a new pair.
	TypeRefresh TokenType = "refresh"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TypeAccess || t == TypeRefresh
}

// TokenTypes lists the token types in issuance order.
func TokenTypes() []TokenType {
	return []TokenType{TypeAccess, TypeRefresh}
}

const (
	// ClaimTokenType is the custom claim carrying the [TokenType].
	ClaimTokenType = "typ"
	// ClaimGroup is the custom claim shared by tokens issued together.
	ClaimGroup = "grp"
)

var registeredClaimNames = map[string]struct{}{
	"jti": {}, "sub": {}, "iss": {}, "aud": {}, "iat": {}, "exp": {}, "nbf": {},
}

// IsRegisteredClaim reports whether name is a registered claim mapped onto a
// structural field of [Claims].
func IsRegisteredClaim(name string) bool {
	_, ok := registeredClaimNames[name]
	return ok
}

// Claims is the claim set of a goToken token.
//
// Temporal claims keep their location so a persisted token can be re-signed with the
// exact same instants. A zero time means the claim is absent. Every claim that is not
// registered lives in Custom.
type Claims struct {
	ID        string
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	NotBefore time.Time
	Custom    map[string]any
}

// Type returns the typ custom claim.
func (c Claims) Type() TokenType {
	s, _ := c.Custom[ClaimTokenType].(string)
	return TokenType(s)
}

// Group returns the grp custom claim.
func (c Claims) Group() string {
	s, _ := c.Custom[ClaimGroup].(string)
	return s
}

// Clone returns a copy that shares no map with c.
func (c Claims) Clone() Claims {
	out := c
	if c.Custom != nil {
		out.Custom = make(map[string]any, len(c.Custom))
		for k, v := range c.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

func (c Claims) normalized() Claims {
	out := c.Clone()
	out.IssuedAt = truncate(c.IssuedAt)
	out.ExpiresAt = truncate(c.ExpiresAt)
	out.NotBefore = truncate(c.NotBefore)
	return out
}

func truncate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Truncate(time.Second)
}

// MarshalJSON encodes registered claims in a fixed order followed by custom claims
// sorted by name, so equal claim sets always produce equal bytes.
func (c Claims) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(name string, value any) error {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal claim %s: %w", name, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(encoded)
		return nil
	}

	if c.ID != "" {
		if err := write("jti", c.ID); err != nil {
			return nil, err
		}
	}
	if c.Subject != "" {
		if err := write("sub", c.Subject); err != nil {
			return nil, err
		}
	}
	if c.Issuer != "" {
		if err := write("iss", c.Issuer); err != nil {
			return nil, err
		}
	}
	for _, tc := range []struct {
		name string
		at   time.Time
	}{{"iat", c.IssuedAt}, {"exp", c.ExpiresAt}, {"nbf", c.NotBefore}} {
		if tc.at.IsZero() {
			continue
		}
		if err := write(tc.name, gjwt.NewNumericDate(tc.at)); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(c.Custom))
	for name := range c.Custom {
		if IsRegisteredClaim(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := write(name, c.Custom[name]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c Claims) GetExpirationTime() (*gjwt.NumericDate, error) { return numericDate(c.ExpiresAt), nil }
func (c Claims) GetIssuedAt() (*gjwt.NumericDate, error)       { return numericDate(c.IssuedAt), nil }
func (c Claims) GetNotBefore() (*gjwt.NumericDate, error)      { return numericDate(c.NotBefore), nil }
func (c Claims) GetIssuer() (string, error)                    { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                   { return c.Subject, nil }
func (c Claims) GetAudience() (gjwt.ClaimStrings, error)       { return nil, nil }

func numericDate(t time.Time) *gjwt.NumericDate {
	if t.IsZero() {
		return nil
	}
	return gjwt.NewNumericDate(t)
}

func claimsFromMap(m gjwt.MapClaims) (Claims, error) {
	var out Claims

	if raw, ok := m["jti"]; ok {
		id, ok := raw.(string)
		if !ok {
			return Claims{}, fmt.Errorf("%w: jti must be a string", ErrMalformedToken)
		}
		out.ID = id
	}

	sub, err := m.GetSubject()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	out.Subject = sub

	iss, err := m.GetIssuer()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	out.Issuer = iss

	for _, tc := range []struct {
		get  func() (*gjwt.NumericDate, error)
		into *time.Time
	}{
		{m.GetIssuedAt, &out.IssuedAt},
		{m.GetExpirationTime, &out.ExpiresAt},
		{m.GetNotBefore, &out.NotBefore},
	} {
		nd, err := tc.get()
		if err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		if nd != nil {
			*tc.into = nd.Time.UTC()
		}
	}

	for name, value := range m {
		if IsRegisteredClaim(name) {
			continue
		}
		if out.Custom == nil {
			out.Custom = make(map[string]any, len(m))
		}
		out.Custom[name] = value
	}

	return out, nil
}
