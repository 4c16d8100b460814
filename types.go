package goToken

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// Principal is an authenticated caller resolved from the sub claim of a token.
type Principal interface {
	AuthIdentifier() string
	OwnerKind() store.OwnerKind
}

// UserDirectory resolves principals by identifier.
//
// RetrieveByID returns [ErrPrincipalNotFound] (or an error wrapping it) when no
// principal has the identifier. Any other error is treated as a backend failure.
type UserDirectory interface {
	RetrieveByID(ctx context.Context, id string) (Principal, error)
}

// UserDirectoryFunc adapts a function to [UserDirectory].
type UserDirectoryFunc func(ctx context.Context, id string) (Principal, error)

func (f UserDirectoryFunc) RetrieveByID(ctx context.Context, id string) (Principal, error) {
	return f(ctx, id)
}

// Owner identifies who a token was issued to.
type Owner struct {
	ID   string
	Kind store.OwnerKind
}

// OwnerOf returns the owner of tokens issued to p.
func OwnerOf(p Principal) Owner {
	if p == nil {
		return Owner{}
	}
	return Owner{ID: p.AuthIdentifier(), Kind: p.OwnerKind()}
}

// Valid reports whether o has an id and a known kind.
func (o Owner) Valid() bool {
	return o.ID != "" && o.Kind.Valid()
}

// IssuedToken is one signed token handed to a client.
//
// It marshals to {"headers":{...},"claims":{...},"token":"..."}.
type IssuedToken struct {
	Token *jwt.Token
}

// String returns the compact serialization.
func (t IssuedToken) String() string {
	if t.Token == nil {
		return ""
	}
	return t.Token.String()
}

// Type returns the typ claim.
func (t IssuedToken) Type() jwt.TokenType {
	if t.Token == nil {
		return ""
	}
	return t.Token.Type()
}

func (t IssuedToken) MarshalJSON() ([]byte, error) {
	if t.Token == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Headers map[string]any `json:"headers"`
		Claims  jwt.Claims     `json:"claims"`
		Token   string         `json:"token"`
	}{
		Headers: t.Token.Header,
		Claims:  t.Token.Claims,
		Token:   t.Token.String(),
	})
}

// TokenPair is the result of [Engine.Issue] and [Engine.Refresh].
type TokenPair struct {
	Owner   Owner
	Group   string
	Access  IssuedToken
	Refresh IssuedToken
}

// Tokens returns the pair in issue order, access first.
func (p TokenPair) Tokens() []IssuedToken {
	return []IssuedToken{p.Access, p.Refresh}
}

// MarshalJSON renders the pair as {"new_tokens":[access, refresh]}.
func (p TokenPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		NewTokens []IssuedToken `json:"new_tokens"`
	}{NewTokens: p.Tokens()})
}

// ValidationResult is returned by [Engine.Validate] for an accepted token.
type ValidationResult struct {
	Token  *jwt.Token
	Type   jwt.TokenType
	Owner  Owner
	Group  string
	Issued time.Time
}
