// Package memory provides an in-process [store.Store] for tests, examples, and
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goToken/store"
)

// Store keeps records and revocations in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]store.Record
	revoked map[string]time.Time
	now     func() time.Time
}

// New returns an empty store. A nil clock defaults to time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		records: make(map[string]store.Record),
		revoked: make(map[string]time.Time),
		now:     now,
	}
}

func (s *Store) Insert(ctx context.Context, records ...store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(records)
}

func (s *Store) insertLocked(records []store.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := s.records[r.ID]; ok {
			return fmt.Errorf("%w: %s", store.ErrDuplicateRecord, r.ID)
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: %s", store.ErrDuplicateRecord, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	now := s.now()
	for _, r := range records {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.Payload = append([]byte(nil), r.Payload...)
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return store.Record{}, store.ErrRecordNotFound
	}
	r.Payload = append([]byte(nil), r.Payload...)
	return r, nil
}

func (s *Store) ListGroup(ctx context.Context, group string) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Record
	if group == "" {
		return out, nil
	}
	for _, r := range s.records {
		if r.Group == group {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IsRevoked(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[id]
	return ok, nil
}

func (s *Store) Revoke(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLocked(ids)
}

func (s *Store) revokeLocked(ids []string) error {
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			return fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
		}
	}
	now := s.now()
	for _, id := range ids {
		if _, ok := s.revoked[id]; !ok {
			s.revoked[id] = now
		}
	}
	return nil
}

func (s *Store) Rotate(ctx context.Context, revoke []string, issue []store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range revoke {
		if _, ok := s.records[id]; !ok {
			return fmt.Errorf("%w: %s", store.ErrRecordNotFound, id)
		}
	}
	if err := s.insertLocked(issue); err != nil {
		return err
	}
	return s.revokeLocked(revoke)
}

func (s *Store) DeleteCreatedBefore(ctx context.Context, tokenType string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if r.Type != tokenType || r.CreatedAt.After(cutoff) {
			continue
		}
		delete(s.records, id)
		delete(s.revoked, id)
		n++
	}
	return n, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RevokedCount reports the number of revocation entries.
func (s *Store) RevokedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

var _ store.Store = (*Store)(nil)
