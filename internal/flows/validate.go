package flows

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissingToken
	ValidateFailureRecordMissing
	ValidateFailureTypeMismatch
	ValidateFailureRevoked
	ValidateFailureExpired
	ValidateFailureNotYetValid
	ValidateFailureViolation
	ValidateFailureStorage
)

// ValidateResult carries either the validated token and its record or failure metadata.
type ValidateResult struct {
	Failure     ValidateFailureKind
	Message     string
	Err         error
	Token       *jwt.Token
	Record      store.Record
	Violations  []*jwt.Violation
	AutoRevoked bool
}

type ValidateStore interface {
	Get(ctx context.Context, id string) (store.Record, error)
	IsRevoked(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, ids ...string) error
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	DecodeRecord func([]byte) (*jwt.Token, error)
	PublicKey    func() *rsa.PublicKey
	Now          func() time.Time
	Leeway       time.Duration
	Warn         func(string, ...any)
	Store        ValidateStore
}

// RunValidate checks a presented token against its persisted record.
//
// Checks run in a fixed order: record lookup, stored type against required, blacklist,
// then the claim constraints. An expired token is revoked before the failure is
// returned, unless its signature does not verify.
func RunValidate(ctx context.Context, tok *jwt.Token, required jwt.TokenType, deps ValidateDeps) ValidateResult {
	if tok == nil {
		return ValidateResult{Failure: ValidateFailureMissingToken}
	}

	rec, err := deps.Store.Get(ctx, tok.ID())
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ValidateResult{Failure: ValidateFailureRecordMissing, Err: err, Token: tok}
		}
		return ValidateResult{Failure: ValidateFailureStorage, Err: err, Token: tok}
	}

	stored, err := deps.DecodeRecord(rec.Payload)
	if err != nil {
		if errors.Is(err, store.ErrSignatureDrift) {
			warn(deps, "goToken: stored token %s no longer re-signs to the issued token", rec.ID)
			return ValidateResult{
				Failure: ValidateFailureViolation,
				Message: jwt.MessageSignature,
				Err:     err,
				Token:   tok,
				Record:  rec,
			}
		}
		return ValidateResult{Failure: ValidateFailureStorage, Err: err, Token: tok, Record: rec}
	}

	if stored.Type() != required {
		return ValidateResult{Failure: ValidateFailureTypeMismatch, Token: tok, Record: rec}
	}

	revoked, err := deps.Store.IsRevoked(ctx, rec.ID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStorage, Err: err, Token: tok, Record: rec}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureRevoked, Token: tok, Record: rec}
	}

	violations := jwt.Assert(tok,
		jwt.IdentifiedBy(rec.ID),
		jwt.RelatedTo(rec.OwnerID),
		jwt.LooseValidAt(deps.Now(), deps.Leeway),
		jwt.SignedWith(deps.PublicKey()),
	)
	if len(violations) == 0 {
		return ValidateResult{Token: tok, Record: rec}
	}

	primary := violations[0]
	result := ValidateResult{
		Message:    primary.Message,
		Err:        primary,
		Token:      tok,
		Record:     rec,
		Violations: violations,
	}

	switch primary.Reason {
	case jwt.ReasonExpired:
		result.Failure = ValidateFailureExpired
		if forged(violations) {
			return result
		}
		if err := deps.Store.Revoke(ctx, rec.ID); err != nil {
			warn(deps, "goToken: auto-revoke of expired token %s failed: %v", rec.ID, err)
			return result
		}
		result.AutoRevoked = true
	case jwt.ReasonNotYetValid:
		result.Failure = ValidateFailureNotYetValid
	default:
		result.Failure = ValidateFailureViolation
	}
	return result
}

func forged(violations []*jwt.Violation) bool {
	for _, v := range violations {
		if v.Reason == jwt.ReasonSignature || v.Reason == jwt.ReasonSigner {
			return true
		}
	}
	return false
}

func warn(deps ValidateDeps, format string, args ...any) {
	if deps.Warn != nil {
		deps.Warn(format, args...)
	}
}
