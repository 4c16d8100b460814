package goToken

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/goToken/jwt"
)

var (
	// ErrUnauthenticated is matched by every [AuthenticationError].
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is matched by every [AuthorizationError].
	ErrForbidden = errors.New("forbidden")
	// ErrPrincipalNotFound is returned by a [UserDirectory] that has no principal for an id.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrIssueFailed is returned when a token pair could not be minted or persisted.
	ErrIssueFailed = errors.New("token issuance failed")
	// ErrInvalidOwner is returned when an owner has no id or an unknown kind.
	ErrInvalidOwner = errors.New("invalid token owner")
)

// Messages carried by authentication and authorization failures.
const (
	MessageUnauthenticated = "Unauthenticated."
	MessageUnauthorized    = "This action is unauthorized."
	MessageRevoked         = "The token is revoked"
	MessageExpired         = jwt.MessageExpired
	MessageNotYetValid     = jwt.MessageNotYetValid
)

// FailureKind tells why a token was refused.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureMissingToken means no token could be located in the request.
	FailureMissingToken
	// FailureRecordMissing means no persisted record matches the token id.
	FailureRecordMissing
	// FailureUnknownSubject means the directory has no principal for the sub claim.
	FailureUnknownSubject
	// FailureTypeMismatch means the token type is not the one the route requires.
	FailureTypeMismatch
	FailureRevoked
	FailureExpired
	FailureNotYetValid
	// FailureViolation covers the remaining constraint failures (identifier, subject,
	// issued in the future, signer, signature).
	FailureViolation
)

var failureKindNames = map[FailureKind]string{
	FailureNone:           "none",
	FailureMissingToken:   "missing_token",
	FailureRecordMissing:  "record_missing",
	FailureUnknownSubject: "unknown_subject",
	FailureTypeMismatch:   "type_mismatch",
	FailureRevoked:        "revoked",
	FailureExpired:        "expired",
	FailureNotYetValid:    "not_yet_valid",
	FailureViolation:      "violation",
}

func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// AuthenticationError reports that the caller could not be identified.
//
// It maps to HTTP 401 and always carries the message "Unauthenticated.".
type AuthenticationError struct {
	Kind FailureKind
	Err  error
}

func (e *AuthenticationError) Error() string { return MessageUnauthenticated }

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnauthenticated) hold.
func (e *AuthenticationError) Is(target error) bool { return target == ErrUnauthenticated }

// StatusCode returns 401.
func (e *AuthenticationError) StatusCode() int { return http.StatusUnauthorized }

// AuthorizationError reports that an identified token may not be used.
//
// It maps to HTTP 403; Message is the human readable reason.
type AuthorizationError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *AuthorizationError) Error() string { return e.Message }

func (e *AuthorizationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrForbidden) hold.
func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// StatusCode returns 403.
func (e *AuthorizationError) StatusCode() int { return http.StatusForbidden }

// KindOf returns the failure kind carried by err, or FailureNone.
func KindOf(err error) FailureKind {
	var authn *AuthenticationError
	if errors.As(err, &authn) {
		return authn.Kind
	}
	var authz *AuthorizationError
	if errors.As(err, &authz) {
		return authz.Kind
	}
	return FailureNone
}

// StatusCode returns the HTTP status for err: 401, 403, or 500 for anything else.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to API clients.
func PublicMessage(err error) string {
	var authz *AuthorizationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authz):
		return authz.Message
	case errors.Is(err, ErrUnauthenticated):
		return MessageUnauthenticated
	default:
		return "Server Error"
	}
}

func unauthenticated(kind FailureKind, err error) error {
	return &AuthenticationError{Kind: kind, Err: err}
}

func forbidden(kind FailureKind, message string, err error) error {
	return &AuthorizationError{Kind: kind, Message: message, Err: err}
}
