package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
)

const defaultRetryDelay = 3 * time.Second

// Deleter is the part of [store.Store] the sweeper needs.
type Deleter interface {
	DeleteCreatedBefore(ctx context.Context, tokenType string, cutoff time.Time) (int64, error)
}

var _ Deleter = store.Store(nil)

// Result reports how many records one sweep deleted per token type.
type Result map[jwt.TokenType]int64

// Total sums the deleted records.
func (r Result) Total() int64 {
	var n int64
	for _, v := range r {
		n += v
	}
	return n
}

// Sweeper deletes expired token records.
type Sweeper struct {
	store      Deleter
	lifetimes  map[jwt.TokenType]jwt.Lifetime
	logger     logrus.FieldLogger
	now        func() time.Time
	timeout    time.Duration
	retryDelay time.Duration
}

// Option configures a [Sweeper].
type Option func(*Sweeper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithTimeout bounds every scheduled sweep. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) { s.timeout = d }
}

// WithRetryDelay sets the pause before the single retry after a transient error.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Sweeper) { s.retryDelay = d }
}

// New returns a sweeper deleting from st according to lifetimes.
func New(st Deleter, lifetimes map[jwt.TokenType]jwt.Lifetime, logger logrus.FieldLogger, opts ...Option) *Sweeper {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if len(lifetimes) == 0 {
		lifetimes = jwt.DefaultLifetimes()
	}

	s := &Sweeper{
		store:      st,
		lifetimes:  lifetimes,
		logger:     logger,
		now:        time.Now,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep deletes every record whose lifetime has elapsed. It stops at the first type
// that still fails after one retry.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	res := make(Result, len(s.lifetimes))

	for _, typ := range s.types() {
		cutoff := now.Add(-s.lifetimes[typ].TTL)

		var deleted int64
		err := s.runWithRetry(ctx, func(ctx context.Context) error {
			n, err := s.store.DeleteCreatedBefore(ctx, string(typ), cutoff)
			deleted = n
			return err
		})
		if err != nil {
			s.logger.WithError(err).WithField("type", typ).Error("token cleanup failed")
			return res, fmt.Errorf("delete expired %s tokens: %w", typ, err)
		}
		res[typ] = deleted
	}

	s.logger.WithFields(logrus.Fields{
		"access":  res[jwt.TypeAccess],
		"refresh": res[jwt.TypeRefresh],
	}).Info("Expired tokens deleted")
	return res, nil
}

// Schedule registers Sweep on c with a cron spec such as "@hourly" or "0 3 * * *".
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.WithError(err).Error("Scheduled token cleanup failed")
		}
	})
}

func (s *Sweeper) types() []jwt.TokenType {
	types := make([]jwt.TokenType, 0, len(s.lifetimes))
	for typ := range s.lifetimes {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// runWithRetry retries op once after a transient connection error.
func (s *Sweeper) runWithRetry(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !transient(err) {
		return err
	}

	s.logger.WithError(err).Warn("token cleanup hit transient store error; retrying once")
	if s.retryDelay > 0 {
		t := time.NewTimer(s.retryDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return op(ctx)
}

func transient(err error) bool {
	return errors.Is(err, io.EOF) ||
		pgconn.SafeToRetry(err) ||
		strings.Contains(err.Error(), "connection was closed")
}
