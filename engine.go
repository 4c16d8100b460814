package goToken

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
	"github.com/sirupsen/logrus"
)

// Engine issues, validates and revokes persisted tokens.
//
// Engine instances are built by [Builder.Build], are immutable afterwards and are
// safe for concurrent use.
type Engine struct {
	config  Config
	jwt     *jwt.Manager
	codec   *store.Codec
	store   store.Store
	users   UserDirectory
	flows   flows.Service
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.jwt != nil && e.flows.Initialized()
}

// Extraction returns the settings middleware uses to locate tokens.
func (e *Engine) Extraction() ExtractionConfig {
	if e == nil {
		return defaultConfig().Extraction
	}
	return e.config.Extraction
}

// Lifetimes returns the configured lifetime per token type.
func (e *Engine) Lifetimes() map[jwt.TokenType]jwt.Lifetime {
	if e == nil {
		return nil
	}
	return e.config.Tokens.Lifetimes()
}

// Store returns the token store the engine was built with.
func (e *Engine) Store() store.Store {
	if e == nil {
		return nil
	}
	return e.store
}

// Parse decodes a compact token without verifying it. Unparsable input yields
// [jwt.ErrMalformedToken].
func (e *Engine) Parse(raw string) (*jwt.Token, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.jwt.Parse(raw)
}

// Issue mints an access and refresh token for owner and persists both records in
// one write. Both tokens share a fresh grp claim.
func (e *Engine) Issue(ctx context.Context, owner Owner) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !owner.Valid() {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, auditEventTokenIssued, false, auditSubject{owner: owner}, ErrInvalidOwner, nil)
		return nil, ErrInvalidOwner
	}

	res := e.flows.Issue(ctx, owner.ID, owner.Kind)
	if res.Failure != flows.IssueFailureNone {
		e.metricInc(MetricIssueFailure)
		if res.Failure == flows.IssueFailureStore {
			e.metricInc(MetricStoreError)
		}
		err := fmt.Errorf("%w: %w", ErrIssueFailed, res.Err)
		e.emitAudit(ctx, auditEventTokenIssued, false, auditSubject{owner: owner}, err, nil)
		return nil, err
	}

	pair := pairOf(owner, res.Tokens)
	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventTokenIssued, true, auditSubject{owner: owner, group: pair.Group}, nil, nil)
	return pair, nil
}

// IssueFor issues a pair to an authenticated principal.
func (e *Engine) IssueFor(ctx context.Context, p Principal) (*TokenPair, error) {
	return e.Issue(ctx, OwnerOf(p))
}

func pairOf(owner Owner, tokens []*jwt.Token) *TokenPair {
	pair := &TokenPair{Owner: owner}
	for _, tok := range tokens {
		switch tok.Type() {
		case jwt.TypeAccess:
			pair.Access = IssuedToken{Token: tok}
		case jwt.TypeRefresh:
			pair.Refresh = IssuedToken{Token: tok}
		}
		if pair.Group == "" {
			pair.Group = tok.Group()
		}
	}
	return pair
}

// Validate checks tok against its persisted record for the required type.
//
// Failures are [*AuthenticationError] (no token, no record) or [*AuthorizationError]
// (wrong type, revoked, expired, not yet usable, other constraint violations).
// An expired token is blacklisted before the error is returned. Storage failures are
// returned wrapped and are neither of the two.
func (e *Engine) Validate(ctx context.Context, tok *jwt.Token, required jwt.TokenType) (*ValidationResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(ctx, tok, required)
	if err := e.validateError(ctx, res); err != nil {
		return nil, err
	}

	e.metricInc(MetricValidateSuccess)
	return &ValidationResult{
		Token:  res.Token,
		Type:   jwt.TokenType(res.Record.Type),
		Owner:  Owner{ID: res.Record.OwnerID, Kind: res.Record.OwnerKind},
		Group:  res.Record.Group,
		Issued: res.Record.CreatedAt,
	}, nil
}

// validateError maps a flow result to the public error, recording metrics and audit.
func (e *Engine) validateError(ctx context.Context, res flows.ValidateResult) error {
	var (
		err    error
		metric MetricID
	)
	switch res.Failure {
	case flows.ValidateFailureNone:
		return nil
	case flows.ValidateFailureMissingToken:
		err, metric = unauthenticated(FailureMissingToken, nil), MetricValidateMissingToken
	case flows.ValidateFailureRecordMissing:
		err, metric = unauthenticated(FailureRecordMissing, res.Err), MetricValidateRecordMissing
	case flows.ValidateFailureTypeMismatch:
		err, metric = forbidden(FailureTypeMismatch, MessageUnauthorized, nil), MetricValidateTypeMismatch
	case flows.ValidateFailureRevoked:
		err, metric = forbidden(FailureRevoked, MessageRevoked, nil), MetricValidateRevoked
	case flows.ValidateFailureExpired:
		err, metric = forbidden(FailureExpired, res.Message, res.Err), MetricValidateExpired
	case flows.ValidateFailureNotYetValid:
		err, metric = forbidden(FailureNotYetValid, res.Message, res.Err), MetricValidateNotYetValid
	case flows.ValidateFailureViolation:
		err, metric = forbidden(FailureViolation, res.Message, res.Err), MetricValidateViolation
	default:
		e.metricInc(MetricStoreError)
		return fmt.Errorf("validate token: %w", res.Err)
	}

	e.metricInc(metric)
	subject := subjectOfToken(res.Token)
	if res.Record.ID != "" {
		subject = subjectOfRecord(res.Record)
	}
	if res.AutoRevoked {
		e.metricInc(MetricAutoRevoke)
		e.emitAudit(ctx, auditEventTokenAutoRevoked, true, subject, nil, nil)
	}
	e.emitAudit(ctx, auditEventValidationFailed, false, subject, err, func() map[string]string {
		if res.Message == "" {
			return nil
		}
		return map[string]string{"message": res.Message}
	})
	return err
}

// Authenticate resolves the sub claim of tok through the user directory.
//
// It does not validate tok; run [Engine.Validate] first. A nil token or an unknown
// subject yields an [*AuthenticationError].
func (e *Engine) Authenticate(ctx context.Context, tok *jwt.Token) (Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if tok == nil || tok.Claims.Subject == "" {
		e.metricInc(MetricAuthenticateFailure)
		err := unauthenticated(FailureMissingToken, nil)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, subjectOfToken(tok), err, nil)
		return nil, err
	}

	p, err := e.users.RetrieveByID(ctx, tok.Claims.Subject)
	if err == nil && p == nil {
		err = ErrPrincipalNotFound
	}
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, fmt.Errorf("retrieve principal: %w", err)
		}
		authErr := unauthenticated(FailureUnknownSubject, err)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, subjectOfToken(tok), authErr, nil)
		return nil, authErr
	}

	e.metricInc(MetricAuthenticateSuccess)
	return p, nil
}

// Refresh validates a refresh token and swaps its whole group for a new pair issued
// to the same owner. The old tokens are revoked in the same store write that
// persists the new ones.
func (e *Engine) Refresh(ctx context.Context, tok *jwt.Token) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, tok)
	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureValidate:
		e.metricInc(MetricRefreshFailure)
		if err := e.validateError(ctx, res.Validate); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("refresh: %w", res.Err)
	case flows.RefreshFailureIssue:
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %w", ErrIssueFailed, res.Err)
	default:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricStoreError)
		return nil, fmt.Errorf("refresh: %w", res.Err)
	}

	rec := res.Validate.Record
	owner := Owner{ID: rec.OwnerID, Kind: rec.OwnerKind}
	pair := pairOf(owner, res.Issued.Tokens)

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokenRefreshed, true, subjectOfRecord(rec), nil, func() map[string]string {
		return map[string]string{
			"new_group": pair.Group,
			"revoked":   fmt.Sprint(len(res.Revoked)),
		}
	})
	return pair, nil
}

// Revoke blacklists the given token ids. Revoking an id twice is not an error.
func (e *Engine) Revoke(ctx context.Context, ids ...string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Revoke(ctx, ids)
	if res.Err != nil {
		if !errors.Is(res.Err, store.ErrRecordNotFound) {
			e.metricInc(MetricStoreError)
		}
		return fmt.Errorf("revoke: %w", res.Err)
	}
	for _, id := range res.Revoked {
		e.metricInc(MetricRevoke)
		e.emitAudit(ctx, auditEventTokenRevoked, true, auditSubject{id: id}, nil, nil)
	}
	return nil
}

// RevokeGroup blacklists every token in the group tok was issued in. This is logout.
//
// The group comes from the stored record of tok, and tok must verify under the
// engine's key. An unknown token yields an [*AuthenticationError]; a token that does
// not match its record or was signed with another key yields an [*AuthorizationError].
func (e *Engine) RevokeGroup(ctx context.Context, tok *jwt.Token) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if tok == nil {
		return unauthenticated(FailureMissingToken, nil)
	}

	res := e.flows.RevokeGroup(ctx, tok)
	switch {
	case res.Err == nil:
	case res.Violation != nil:
		err := forbidden(FailureViolation, res.Violation.Message, res.Violation)
		e.emitAudit(ctx, auditEventTokenRevoked, false, subjectOfToken(tok), err, nil)
		return err
	case errors.Is(res.Err, store.ErrRecordNotFound):
		err := unauthenticated(FailureRecordMissing, res.Err)
		e.emitAudit(ctx, auditEventTokenRevoked, false, subjectOfToken(tok), err, nil)
		return err
	default:
		e.metricInc(MetricStoreError)
		return fmt.Errorf("revoke group: %w", res.Err)
	}

	e.metricInc(MetricRevokeGroup)
	e.emitAudit(ctx, auditEventTokenRevoked, true, subjectOfToken(tok), nil, func() map[string]string {
		return map[string]string{
			"scope":   "group",
			"revoked": fmt.Sprint(len(res.Revoked)),
		}
	})
	return nil
}
