package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRecordNotFound is returned when no record exists for a token id.
	ErrRecordNotFound = errors.New("token record not found")
	// ErrDuplicateRecord is returned when a record with the same id already exists.
	ErrDuplicateRecord = errors.New("token record already exists")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("token store unavailable")
	// ErrCorruptPayload is returned when a stored payload cannot be decoded.
	ErrCorruptPayload = errors.New("token payload corrupt")
	// ErrSignatureDrift is returned when re-signing a stored payload no longer
	// reproduces the token that was issued, typically after a key rotation.
	ErrSignatureDrift = errors.New("token signature drift")
)

// OwnerKind names the kind of principal a token belongs to.
type OwnerKind string

const (
	OwnerCandidate OwnerKind = "candidate"
	OwnerCompany   OwnerKind = "company"
	OwnerAdmin     OwnerKind = "admin"
	OwnerModerator OwnerKind = "moderator"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerCandidate, OwnerCompany, OwnerAdmin, OwnerModerator:
		return true
	default:
		return false
	}
}

// ParseOwnerKind converts s into an [OwnerKind].
func ParseOwnerKind(s string) (OwnerKind, error) {
	k := OwnerKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown owner kind %q", s)
	}
	return k, nil
}

// Record is one persisted token. Records are immutable after insert.
//
// Type and Group mirror the typ and grp claims of the payload so that stores can
// index them without decoding.
type Record struct {
	ID        string
	OwnerID   string
	OwnerKind OwnerKind
	Type      string
	Group     string
	Payload   []byte
	CreatedAt time.Time
}

// Store persists token records and their revocation state.
//
// Insert, Revoke, and Rotate are atomic: either every row is written or none is.
// Revoke is idempotent; revoking an already revoked id is not an error.
type Store interface {
	Insert(ctx context.Context, records ...Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListGroup(ctx context.Context, group string) ([]Record, error)
	IsRevoked(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, ids ...string) error
	Rotate(ctx context.Context, revoke []string, issue []Record) error
	DeleteCreatedBefore(ctx context.Context, tokenType string, cutoff time.Time) (int64, error)
}

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id required")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("record owner id required")
	}
	if !r.OwnerKind.Valid() {
		return fmt.Errorf("record owner kind %q invalid", r.OwnerKind)
	}
	if len(r.Payload) == 0 {
		return errors.New("record payload required")
	}
	return nil
}

// IDs returns the ids of records in order.
func IDs(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
