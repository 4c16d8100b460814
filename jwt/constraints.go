package jwt

import (
	"crypto/rsa"
	"errors"
	"time"
)

// ViolationReason identifies which check a token failed.
type ViolationReason int

const (
	ReasonIdentifier ViolationReason = iota + 1
	ReasonSubject
	ReasonIssuedInFuture
	ReasonNotYetValid
	ReasonExpired
	ReasonSigner
	ReasonSignature
)

// Messages reported by the built-in constraints.
const (
	MessageIdentifier     = "The token is not identified with the expected ID"
	MessageSubject        = "The token is not related to the expected subject"
	MessageIssuedInFuture = "The token was issued in the future"
	MessageNotYetValid    = "The token cannot be used yet"
	MessageExpired        = "The token is expired"
	MessageSigner         = "Token signer mismatch"
	MessageSignature      = "Token signature mismatch"
)

// Violation is the error returned by a failing [Constraint].
type Violation struct {
	Reason  ViolationReason
	Message string
	Err     error
}

func (v *Violation) Error() string { return v.Message }

func (v *Violation) Unwrap() error { return v.Err }

// Constraint is one check applied to a decoded token.
type Constraint interface {
	Assert(t *Token) *Violation
}

type identifiedBy struct{ id string }

// IdentifiedBy requires the jti claim to equal id.
func IdentifiedBy(id string) Constraint { return identifiedBy{id: id} }

func (c identifiedBy) Assert(t *Token) *Violation {
	if t.ID() != c.id {
		return &Violation{Reason: ReasonIdentifier, Message: MessageIdentifier}
	}
	return nil
}

type relatedTo struct{ subject string }

// RelatedTo requires the sub claim to equal subject.
func RelatedTo(subject string) Constraint { return relatedTo{subject: subject} }

func (c relatedTo) Assert(t *Token) *Violation {
	if t.Claims.Subject != c.subject {
		return &Violation{Reason: ReasonSubject, Message: MessageSubject}
	}
	return nil
}

type looseValidAt struct {
	now    time.Time
	leeway time.Duration
}

// LooseValidAt requires now to fall inside [nbf, exp] widened by leeway on both sides,
// and iat to not be later than now plus leeway. Absent temporal claims are not checked.
func LooseValidAt(now time.Time, leeway time.Duration) Constraint {
	return looseValidAt{now: now, leeway: leeway}
}

func (c looseValidAt) Assert(t *Token) *Violation {
	claims := t.Claims
	late := c.now.Add(c.leeway)
	early := c.now.Add(-c.leeway)

	if !claims.IssuedAt.IsZero() && late.Before(claims.IssuedAt) {
		return &Violation{Reason: ReasonIssuedInFuture, Message: MessageIssuedInFuture}
	}
	if !claims.NotBefore.IsZero() && late.Before(claims.NotBefore) {
		return &Violation{Reason: ReasonNotYetValid, Message: MessageNotYetValid}
	}
	if !claims.ExpiresAt.IsZero() && early.After(claims.ExpiresAt) {
		return &Violation{Reason: ReasonExpired, Message: MessageExpired}
	}
	return nil
}

type signedWith struct{ key *rsa.PublicKey }

// SignedWith requires an RS512 signature that verifies under key.
func SignedWith(key *rsa.PublicKey) Constraint { return signedWith{key: key} }

func (c signedWith) Assert(t *Token) *Violation {
	err := verifyRS512(t, c.key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return &Violation{Reason: ReasonSigner, Message: MessageSigner, Err: err}
	default:
		return &Violation{Reason: ReasonSignature, Message: MessageSignature, Err: err}
	}
}

// Assert runs every constraint against t and returns the violations in constraint
// order. A nil result means the token satisfied all of them.
func Assert(t *Token, constraints ...Constraint) []*Violation {
	var out []*Violation
	for _, c := range constraints {
		if v := c.Assert(t); v != nil {
			out = append(out, v)
		}
	}
	return out
}
