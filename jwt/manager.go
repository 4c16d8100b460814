package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Lifetime bounds the validity window of one token type.
//
// A token issued at iat expires at iat+TTL and cannot be used before iat+CanBeUsedAfter.
type Lifetime struct {
	TTL            time.Duration
	CanBeUsedAfter time.Duration
}

// Config defines the inputs of [NewManager].
type Config struct {
	Issuer     string
	PrivateKey []byte
	PublicKey  []byte
	Lifetimes  map[TokenType]Lifetime
	Leeway     time.Duration
	Location   *time.Location
	Now        func() time.Time
}

// DefaultLifetimes returns 30 minutes for access tokens and 15 days for refresh tokens,
// both usable immediately.
func DefaultLifetimes() map[TokenType]Lifetime {
	return map[TokenType]Lifetime{
		TypeAccess:  {TTL: 30 * time.Minute},
		TypeRefresh: {TTL: 21600 * time.Minute},
	}
}

// Manager signs and decodes RS512 tokens.
//
// Manager instances are immutable after [NewManager] and safe for concurrent use.
type Manager struct {
	config Config
	keys   KeyPair
	parser *gjwt.Parser
}

// NewManager validates cfg and parses its key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Lifetimes) == 0 {
		cfg.Lifetimes = DefaultLifetimes()
	}
	for _, typ := range TokenTypes() {
		lt, ok := cfg.Lifetimes[typ]
		if !ok {
			return nil, fmt.Errorf("%w: %s lifetime missing", ErrInvalidLifetime, typ)
		}
		if lt.TTL <= 0 {
			return nil, fmt.Errorf("%w: %s ttl must be > 0", ErrInvalidLifetime, typ)
		}
		if lt.CanBeUsedAfter < 0 {
			return nil, fmt.Errorf("%w: %s can-be-used-after must be >= 0", ErrInvalidLifetime, typ)
		}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	keys, err := ParseKeyPair(cfg.PrivateKey, cfg.PublicKey)
	if err != nil {
		return nil, err
	}

	lifetimes := make(map[TokenType]Lifetime, len(cfg.Lifetimes))
	for k, v := range cfg.Lifetimes {
		lifetimes[k] = v
	}
	cfg.Lifetimes = lifetimes

	return &Manager{
		config: cfg,
		keys:   keys,
		parser: gjwt.NewParser(gjwt.WithValidMethods([]string{gjwt.SigningMethodRS512.Alg()})),
	}, nil
}

// Data generates the claim sets of a new token pair for subject.
//
// The access claims come first. Both sets share one grp value and one issue instant;
// each gets its own jti, typ, exp, and nbf.
func (m *Manager) Data(subject string) ([]Claims, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("subject required")
	}

	group, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate token group: %w", err)
	}
	issuedAt := m.config.Now().In(m.config.Location).Truncate(time.Second)

	out := make([]Claims, 0, len(TokenTypes()))
	for _, typ := range TokenTypes() {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("generate token id: %w", err)
		}
		lt := m.config.Lifetimes[typ]
		out = append(out, Claims{
			ID:        id.String(),
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt.Add(lt.TTL),
			NotBefore: issuedAt.Add(lt.CanBeUsedAfter),
			Custom: map[string]any{
				ClaimTokenType: string(typ),
				ClaimGroup:     group.String(),
			},
		})
	}
	return out, nil
}

// Build signs claims and returns the resulting token.
//
// RS512 signatures are deterministic, so building equal claims with the same key
// always yields the same compact string.
func (m *Manager) Build(claims Claims) (*Token, error) {
	claims = claims.normalized()

	tok := gjwt.NewWithClaims(gjwt.SigningMethodRS512, claims)
	signed, err := tok.SignedString(m.keys.Private)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	sig, err := m.parser.DecodeSegment(signed[strings.LastIndexByte(signed, '.')+1:])
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	return &Token{
		Header:    cloneHeader(tok.Header),
		Claims:    claims,
		Signature: sig,
		raw:       signed,
	}, nil
}

// Parse decodes a compact string without verifying its signature.
//
// Any structural problem is reported as [ErrMalformedToken].
func (m *Manager) Parse(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformedToken
	}

	mc := gjwt.MapClaims{}
	tok, _, err := m.parser.ParseUnverified(raw, mc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	claims, err := claimsFromMap(mc)
	if err != nil {
		return nil, err
	}

	return &Token{
		Header:    cloneHeader(tok.Header),
		Claims:    claims,
		Signature: tok.Signature,
		raw:       raw,
	}, nil
}

// Verify checks that t is signed with RS512 by the configured key.
func (m *Manager) Verify(t *Token) error {
	return verifyRS512(t, m.keys.Public)
}

// PublicKey returns the verification key.
func (m *Manager) PublicKey() *rsa.PublicKey {
	return m.keys.Public
}

// Leeway returns the clock tolerance applied to temporal claims.
func (m *Manager) Leeway() time.Duration {
	return m.config.Leeway
}

// Lifetime returns the configured lifetime of typ.
func (m *Manager) Lifetime(typ TokenType) (Lifetime, bool) {
	lt, ok := m.config.Lifetimes[typ]
	return lt, ok
}

// Now returns the current instant of the manager clock.
func (m *Manager) Now() time.Time {
	return m.config.Now()
}

func verifyRS512(t *Token, key *rsa.PublicKey) error {
	if t == nil {
		return ErrMalformedToken
	}
	if t.Algorithm() != gjwt.SigningMethodRS512.Alg() {
		return ErrUnsupportedAlgorithm
	}
	if key == nil {
		return ErrInvalidKey
	}
	if err := gjwt.SigningMethodRS512.Verify(t.SigningInput(), t.Signature, key); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}
