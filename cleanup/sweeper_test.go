package cleanup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
	"github.com/MrEthical07/goToken/store/memory"
)

var sweepNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id, typ string, created time.Time) store.Record {
	return store.Record{
		ID:        id,
		OwnerID:   "owner",
		OwnerKind: store.OwnerCandidate,
		Type:      typ,
		Group:     "g-" + id,
		Payload:   []byte(`{}`),
		CreatedAt: created,
	}
}

func TestSweepDeletesExpiredRecordsPerType(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(func() time.Time { return sweepNow })
	require.NoError(t, mem.Insert(ctx,
		record("a-old", "access", sweepNow.Add(-31*time.Minute)),
		record("a-edge", "access", sweepNow.Add(-30*time.Minute)),
		record("a-new", "access", sweepNow.Add(-29*time.Minute)),
		record("r-old", "refresh", sweepNow.Add(-16*24*time.Hour)),
		record("r-new", "refresh", sweepNow.Add(-time.Hour)),
	))
	require.NoError(t, mem.Revoke(ctx, "a-old"))

	s := New(mem, jwt.DefaultLifetimes(), nil, WithClock(func() time.Time { return sweepNow }))
	res, err := s.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res[jwt.TypeAccess])
	assert.Equal(t, int64(1), res[jwt.TypeRefresh])
	assert.Equal(t, int64(3), res.Total())
	assert.Equal(t, 2, mem.Len())
	assert.Zero(t, mem.RevokedCount())

	_, err = mem.Get(ctx, "a-new")
	assert.NoError(t, err)
	_, err = mem.Get(ctx, "a-edge")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

type flakyDeleter struct {
	errs  []error
	calls int
}

func (f *flakyDeleter) DeleteCreatedBefore(context.Context, string, time.Time) (int64, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func TestSweepRetriesTransientErrorOnce(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := &flakyDeleter{errs: []error{io.EOF}}

	s := New(d, jwt.DefaultLifetimes(), logger, WithRetryDelay(0))
	res, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, d.calls)
	assert.Equal(t, int64(2), res.Total())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSweepGivesUpAfterSecondFailure(t *testing.T) {
	d := &flakyDeleter{errs: []error{io.EOF, io.EOF}}

	s := New(d, jwt.DefaultLifetimes(), nil, WithRetryDelay(0))
	_, err := s.Sweep(context.Background())

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, d.calls)
}

func TestSweepDoesNotRetryPermanentError(t *testing.T) {
	boom := errors.New("permission denied for table jwt_tokens")
	d := &flakyDeleter{errs: []error{boom}}

	s := New(d, jwt.DefaultLifetimes(), nil, WithRetryDelay(time.Hour))
	_, err := s.Sweep(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, d.calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &flakyDeleter{errs: []error{io.EOF}}

	s := New(d, jwt.DefaultLifetimes(), nil, WithRetryDelay(time.Hour))
	_, err := s.Sweep(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, d.calls)
}

func TestScheduleRegistersEntry(t *testing.T) {
	c := cron.New()
	s := New(&flakyDeleter{}, nil, nil, WithTimeout(time.Minute))

	id, err := s.Schedule(c, "@hourly")
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	assert.Equal(t, id, c.Entries()[0].ID)

	_, err = s.Schedule(c, "not a schedule")
	assert.Error(t, err)
}

func TestScheduledJobSweeps(t *testing.T) {
	d := &flakyDeleter{}
	c := cron.New()
	s := New(d, nil, nil)

	id, err := s.Schedule(c, "@every 1h")
	require.NoError(t, err)

	c.Entry(id).Job.Run()
	assert.Equal(t, 2, d.calls)
}
