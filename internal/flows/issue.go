package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureOwner
	IssueFailureClaims
	IssueFailureBuild
	IssueFailureEncode
	IssueFailureStore
)

// IssueResult carries the issued tokens in claim order (access first) and their records.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Tokens  []*jwt.Token
	Records []store.Record
}

type IssueStore interface {
	Insert(ctx context.Context, records ...store.Record) error
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Data   func(subject string) ([]jwt.Claims, error)
	Build  func(jwt.Claims) (*jwt.Token, error)
	Encode func(*jwt.Token) ([]byte, error)
	Now    func() time.Time
	Store  IssueStore
}

// RunIssue mints one token per configured type for the owner and persists every record
// in a single insert.
func RunIssue(ctx context.Context, ownerID string, kind store.OwnerKind, deps IssueDeps) IssueResult {
	result := mint(ownerID, kind, deps)
	if result.Failure != IssueFailureNone {
		return result
	}
	if err := deps.Store.Insert(ctx, result.Records...); err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}
	return result
}

func mint(ownerID string, kind store.OwnerKind, deps IssueDeps) IssueResult {
	if ownerID == "" {
		return IssueResult{Failure: IssueFailureOwner, Err: errors.New("owner id required")}
	}
	if !kind.Valid() {
		return IssueResult{Failure: IssueFailureOwner, Err: errors.New("owner kind invalid")}
	}

	claims, err := deps.Data(ownerID)
	if err != nil {
		return IssueResult{Failure: IssueFailureClaims, Err: err}
	}

	now := deps.Now()
	result := IssueResult{
		Tokens:  make([]*jwt.Token, 0, len(claims)),
		Records: make([]store.Record, 0, len(claims)),
	}
	for _, c := range claims {
		tok, err := deps.Build(c)
		if err != nil {
			return IssueResult{Failure: IssueFailureBuild, Err: err}
		}
		payload, err := deps.Encode(tok)
		if err != nil {
			return IssueResult{Failure: IssueFailureEncode, Err: err}
		}
		result.Tokens = append(result.Tokens, tok)
		result.Records = append(result.Records, store.Record{
			ID:        tok.ID(),
			OwnerID:   ownerID,
			OwnerKind: kind,
			Type:      string(tok.Type()),
			Group:     tok.Group(),
			Payload:   payload,
			CreatedAt: now,
		})
	}
	return result
}
