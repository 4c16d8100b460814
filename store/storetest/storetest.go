// Package storetest holds the behavioral suite every [store.Store] implementation runs
// from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goToken/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// NewRecord returns a valid record of the given type and group.
func NewRecord(tokenType, group string, createdAt time.Time) store.Record {
	return store.Record{
		ID:        uuid.NewString(),
		OwnerID:   "42",
		OwnerKind: store.OwnerCandidate,
		Type:      tokenType,
		Group:     group,
		Payload:   []byte(`{"headers":{"alg":"RS512","typ":"JWT"},"claims":{"typ":"` + tokenType + `","grp":"` + group + `"}}`),
		CreatedAt: createdAt,
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("insert and get", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("get missing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("insert duplicate is atomic", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("list group", func(t *testing.T) { testListGroup(t, newStore(t)) })
	t.Run("revoke is idempotent", func(t *testing.T) { testRevokeIdempotent(t, newStore(t)) })
	t.Run("revoke unknown id", func(t *testing.T) { testRevokeUnknown(t, newStore(t)) })
	t.Run("concurrent revoke", func(t *testing.T) { testConcurrentRevoke(t, newStore(t)) })
	t.Run("rotate", func(t *testing.T) { testRotate(t, newStore(t)) })
	t.Run("rotate failure leaves state untouched", func(t *testing.T) { testRotateFailure(t, newStore(t)) })
	t.Run("delete created before", func(t *testing.T) { testDeleteCreatedBefore(t, newStore(t)) })
}

func pair(createdAt time.Time) []store.Record {
	group := uuid.NewString()
	return []store.Record{
		NewRecord("access", group, createdAt),
		NewRecord("refresh", group, createdAt),
	}
}

func testInsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := time.Now().Truncate(time.Millisecond)
	recs := pair(created)
	require.NoError(t, s.Insert(ctx, recs...))

	got, err := s.Get(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recs[0].ID, got.ID)
	assert.Equal(t, "42", got.OwnerID)
	assert.Equal(t, store.OwnerCandidate, got.OwnerKind)
	assert.Equal(t, "access", got.Type)
	assert.Equal(t, recs[0].Group, got.Group)
	assert.JSONEq(t, string(recs[0].Payload), string(got.Payload))
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)

	revoked, err := s.IsRevoked(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}

func testInsertDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	existing := NewRecord("access", uuid.NewString(), time.Now())
	require.NoError(t, s.Insert(ctx, existing))

	fresh := NewRecord("refresh", existing.Group, time.Now())
	err := s.Insert(ctx, fresh, existing)
	require.ErrorIs(t, err, store.ErrDuplicateRecord)

	_, err = s.Get(ctx, fresh.ID)
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}

func testListGroup(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := pair(time.Now())
	second := pair(time.Now())
	require.NoError(t, s.Insert(ctx, first...))
	require.NoError(t, s.Insert(ctx, second...))

	got, err := s.ListGroup(ctx, first[0].Group)
	require.NoError(t, err)
	assert.ElementsMatch(t, store.IDs(first), store.IDs(got))

	none, err := s.ListGroup(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRevokeIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	recs := pair(time.Now())
	require.NoError(t, s.Insert(ctx, recs...))

	require.NoError(t, s.Revoke(ctx, store.IDs(recs)...))
	require.NoError(t, s.Revoke(ctx, recs[0].ID))

	for _, r := range recs {
		revoked, err := s.IsRevoked(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, revoked)
	}
}

func testRevokeUnknown(t *testing.T, s store.Store) {
	ctx := context.Background()
	recs := pair(time.Now())
	require.NoError(t, s.Insert(ctx, recs...))

	err := s.Revoke(ctx, recs[0].ID, uuid.NewString())
	require.ErrorIs(t, err, store.ErrRecordNotFound)

	revoked, err := s.IsRevoked(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.False(t, revoked, "a failed bulk revoke must not revoke anything")
}

func testConcurrentRevoke(t *testing.T, s store.Store) {
	ctx := context.Background()
	recs := pair(time.Now())
	require.NoError(t, s.Insert(ctx, recs...))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Revoke(ctx, recs[0].ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	revoked, err := s.IsRevoked(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func testRotate(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := pair(time.Now())
	require.NoError(t, s.Insert(ctx, old...))

	next := pair(time.Now())
	require.NoError(t, s.Rotate(ctx, store.IDs(old), next))

	for _, r := range old {
		revoked, err := s.IsRevoked(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, revoked)
	}
	for _, r := range next {
		_, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		revoked, err := s.IsRevoked(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, revoked)
	}
}

func testRotateFailure(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := pair(time.Now())
	require.NoError(t, s.Insert(ctx, old...))

	next := pair(time.Now())
	err := s.Rotate(ctx, append(store.IDs(old), uuid.NewString()), next)
	require.Error(t, err)

	for _, r := range next {
		_, err := s.Get(ctx, r.ID)
		require.ErrorIs(t, err, store.ErrRecordNotFound)
	}
	revoked, err := s.IsRevoked(ctx, old[0].ID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func testDeleteCreatedBefore(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()
	stale := pair(now.Add(-2 * time.Hour))
	fresh := pair(now)
	require.NoError(t, s.Insert(ctx, stale...))
	require.NoError(t, s.Insert(ctx, fresh...))
	require.NoError(t, s.Revoke(ctx, stale[0].ID))

	n, err := s.DeleteCreatedBefore(ctx, "access", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, stale[0].ID)
	require.ErrorIs(t, err, store.ErrRecordNotFound)
	_, err = s.Get(ctx, stale[1].ID)
	require.NoError(t, err, "refresh records are swept by their own type")
	_, err = s.Get(ctx, fresh[0].ID)
	require.NoError(t, err)

	group, err := s.ListGroup(ctx, stale[0].Group)
	require.NoError(t, err)
	assert.Equal(t, []string{stale[1].ID}, store.IDs(group))
}
