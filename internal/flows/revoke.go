package flows

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

type RevokeStore interface {
	Get(ctx context.Context, id string) (store.Record, error)
	ListGroup(ctx context.Context, group string) ([]store.Record, error)
	Revoke(ctx context.Context, ids ...string) error
}

// RevokeDeps captures revocation dependencies.
type RevokeDeps struct {
	Store     RevokeStore
	PublicKey func() *rsa.PublicKey
}

// RevokeResult reports the ids written to the blacklist.
type RevokeResult struct {
	Revoked []string
	Err     error
	// Violation is set when the presented token is not the one its record was issued as.
	Violation *jwt.Violation
}

// RunRevoke blacklists ids in one atomic write.
func RunRevoke(ctx context.Context, ids []string, deps RevokeDeps) RevokeResult {
	if len(ids) == 0 {
		return RevokeResult{}
	}
	if err := deps.Store.Revoke(ctx, ids...); err != nil {
		return RevokeResult{Err: err}
	}
	return RevokeResult{Revoked: ids}
}

// RunRevokeGroup blacklists every record in the group of the record tok was issued as.
//
// The group is read from the stored record, and tok must carry that record's id and
// owner and verify under the public key. A token signed elsewhere revokes nothing.
func RunRevokeGroup(ctx context.Context, tok *jwt.Token, deps RevokeDeps) RevokeResult {
	if tok == nil {
		return RevokeResult{Err: errors.New("token required")}
	}
	if deps.PublicKey == nil {
		return RevokeResult{Err: errors.New("revoke group: public key required")}
	}

	rec, err := deps.Store.Get(ctx, tok.ID())
	if err != nil {
		return RevokeResult{Err: err}
	}
	violations := jwt.Assert(tok,
		jwt.IdentifiedBy(rec.ID),
		jwt.RelatedTo(rec.OwnerID),
		jwt.SignedWith(deps.PublicKey()),
	)
	if len(violations) > 0 {
		return RevokeResult{Err: violations[0], Violation: violations[0]}
	}
	if rec.Group == "" {
		return RunRevoke(ctx, []string{rec.ID}, deps)
	}

	records, err := deps.Store.ListGroup(ctx, rec.Group)
	if err != nil {
		return RevokeResult{Err: err}
	}
	if len(records) == 0 {
		return RevokeResult{Err: store.ErrRecordNotFound}
	}
	return RunRevoke(ctx, store.IDs(records), deps)
}
