package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureValidate
	RefreshFailureGroup
	RefreshFailureIssue
	RefreshFailureRotate
)

// RefreshResult carries either the rotated pair or failure metadata.
//
// When Failure is RefreshFailureValidate, Validate holds the validation outcome.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Validate ValidateResult
	Revoked  []string
	Issued   IssueResult
}

type RefreshStore interface {
	ListGroup(ctx context.Context, group string) ([]store.Record, error)
	Rotate(ctx context.Context, revoke []string, issue []store.Record) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Validate ValidateDeps
	Issue    IssueDeps
	Store    RefreshStore
}

// RunRefresh validates a refresh token, mints a new pair for the same owner, and swaps
// the old group for the new pair in one store transaction.
func RunRefresh(ctx context.Context, tok *jwt.Token, deps RefreshDeps) RefreshResult {
	validated := RunValidate(ctx, tok, jwt.TypeRefresh, deps.Validate)
	if validated.Failure != ValidateFailureNone {
		return RefreshResult{Failure: RefreshFailureValidate, Err: validated.Err, Validate: validated}
	}

	rec := validated.Record
	group, err := deps.Store.ListGroup(ctx, rec.Group)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureGroup, Err: err, Validate: validated}
	}
	revoke := store.IDs(group)
	if len(revoke) == 0 {
		revoke = []string{rec.ID}
	}

	issued := mint(rec.OwnerID, rec.OwnerKind, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return RefreshResult{Failure: RefreshFailureIssue, Err: issued.Err, Validate: validated, Issued: issued}
	}

	if err := deps.Store.Rotate(ctx, revoke, issued.Records); err != nil {
		return RefreshResult{Failure: RefreshFailureRotate, Err: err, Validate: validated}
	}

	return RefreshResult{
		Validate: validated,
		Revoked:  revoke,
		Issued:   issued,
	}
}
