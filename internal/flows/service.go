package flows

import (
	"context"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.Store != nil && s.deps.Issue.Store != nil
}

func (s Service) Issue(ctx context.Context, ownerID string, kind store.OwnerKind) IssueResult {
	return RunIssue(ctx, ownerID, kind, s.deps.Issue)
}

func (s Service) Validate(ctx context.Context, tok *jwt.Token, required jwt.TokenType) ValidateResult {
	return RunValidate(ctx, tok, required, s.deps.Validate)
}

func (s Service) Refresh(ctx context.Context, tok *jwt.Token) RefreshResult {
	return RunRefresh(ctx, tok, s.deps.Refresh)
}

func (s Service) Revoke(ctx context.Context, ids []string) RevokeResult {
	return RunRevoke(ctx, ids, s.deps.Revoke)
}

func (s Service) RevokeGroup(ctx context.Context, tok *jwt.Token) RevokeResult {
	return RunRevokeGroup(ctx, tok, s.deps.Revoke)
}
