package goToken

import (
	"context"
	"errors"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

const (
	auditEventTokenIssued          = "token_issued"
	auditEventTokenRefreshed       = "token_refreshed"
	auditEventTokenRevoked         = "token_revoked"
	auditEventTokenAutoRevoked     = "token_auto_revoked"
	auditEventValidationFailed     = "validation_failed"
	auditEventAuthenticationFailed = "authentication_failed"
)

// AuditErrorCode is the stable error label written to [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrMissingToken   AuditErrorCode = "missing_token"
	auditErrRecordMissing  AuditErrorCode = "record_missing"
	auditErrUnknownSubject AuditErrorCode = "unknown_subject"
	auditErrTypeMismatch   AuditErrorCode = "type_mismatch"
	auditErrRevoked        AuditErrorCode = "revoked"
	auditErrExpired        AuditErrorCode = "expired"
	auditErrNotYetValid    AuditErrorCode = "not_yet_valid"
	auditErrViolation      AuditErrorCode = "constraint_violation"
	auditErrInvalidOwner   AuditErrorCode = "invalid_owner"
	auditErrNotFound       AuditErrorCode = "not_found"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrInternal       AuditErrorCode = "internal_error"
)

// auditSubject carries the token-level fields of an event.
type auditSubject struct {
	owner Owner
	id    string
	typ   jwt.TokenType
	group string
}

func subjectOfToken(tok *jwt.Token) auditSubject {
	if tok == nil {
		return auditSubject{}
	}
	return auditSubject{
		owner: Owner{ID: tok.Claims.Subject},
		id:    tok.ID(),
		typ:   tok.Type(),
		group: tok.Group(),
	}
}

func subjectOfRecord(rec store.Record) auditSubject {
	return auditSubject{
		owner: Owner{ID: rec.OwnerID, Kind: rec.OwnerKind},
		id:    rec.ID,
		typ:   jwt.TokenType(rec.Type),
		group: rec.Group,
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditSubject,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := UserAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		OwnerID:   subject.owner.ID,
		OwnerKind: string(subject.owner.Kind),
		TokenID:   subject.id,
		TokenType: string(subject.typ),
		Group:     subject.group,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case FailureMissingToken:
		return auditErrMissingToken
	case FailureRecordMissing:
		return auditErrRecordMissing
	case FailureUnknownSubject:
		return auditErrUnknownSubject
	case FailureTypeMismatch:
		return auditErrTypeMismatch
	case FailureRevoked:
		return auditErrRevoked
	case FailureExpired:
		return auditErrExpired
	case FailureNotYetValid:
		return auditErrNotYetValid
	case FailureViolation:
		return auditErrViolation
	}

	switch {
	case errors.Is(err, ErrInvalidOwner):
		return auditErrInvalidOwner
	case errors.Is(err, store.ErrRecordNotFound):
		return auditErrNotFound
	case errors.Is(err, store.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
