package goToken

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/store"
	"github.com/MrEthical07/goToken/store/memory"
)

var (
	testKeysOnce sync.Once
	testPrivPEM  []byte
	testPubPEM   []byte
)

func testKeys(tb testing.TB) ([]byte, []byte) {
	tb.Helper()
	testKeysOnce.Do(func() {
		var err error
		testPrivPEM, testPubPEM, err = jwt.GenerateKeyPEM(2048)
		if err != nil {
			panic(err)
		}
	})
	return testPrivPEM, testPubPEM
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testPrincipal struct {
	id   string
	kind store.OwnerKind
}

func (p testPrincipal) AuthIdentifier() string     { return p.id }
func (p testPrincipal) OwnerKind() store.OwnerKind { return p.kind }

type testDirectory map[string]Principal

func (d testDirectory) RetrieveByID(_ context.Context, id string) (Principal, error) {
	p, ok := d[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

const testOwnerID = "7d0e3c1a-4f57-4c36-9a53-2f1c8f1e2b10"

var testOwner = Owner{ID: testOwnerID, Kind: store.OwnerCandidate}

func testConfig(tb testing.TB) Config {
	tb.Helper()
	priv, pub := testKeys(tb)
	cfg := DefaultConfig()
	cfg.JWT.Issuer = "https://api.example.test"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return cfg
}

type testEngine struct {
	*Engine
	clock *testClock
	store *memory.Store
}

func newTestEngine(tb testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEngine {
	tb.Helper()
	cfg := testConfig(tb)
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	mem := memory.New(clock.Now)
	b := New().
		WithConfig(cfg).
		WithStore(mem).
		WithClock(clock.Now).
		WithUserDirectory(testDirectory{
			testOwnerID: testPrincipal{id: testOwnerID, kind: store.OwnerCandidate},
		})
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	require.NoError(tb, err)
	tb.Cleanup(engine.Close)

	return &testEngine{Engine: engine, clock: clock, store: mem}
}

func requireAuthz(t *testing.T, err error, kind FailureKind, message string) {
	t.Helper()
	var authz *AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.Equal(t, kind, authz.Kind)
	assert.Equal(t, message, authz.Error())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func requireAuthn(t *testing.T, err error, kind FailureKind) {
	t.Helper()
	var authn *AuthenticationError
	require.ErrorAs(t, err, &authn)
	assert.Equal(t, kind, authn.Kind)
	assert.Equal(t, MessageUnauthenticated, err.Error())
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestIssueReturnsPersistedPair(t *testing.T) {
	e := newTestEngine(t, nil)

	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	assert.Equal(t, testOwner, pair.Owner)
	assert.Equal(t, jwt.TypeAccess, pair.Access.Type())
	assert.Equal(t, jwt.TypeRefresh, pair.Refresh.Type())
	assert.NotEmpty(t, pair.Group)
	assert.Equal(t, pair.Group, pair.Access.Token.Group())
	assert.Equal(t, pair.Group, pair.Refresh.Token.Group())
	assert.NotEqual(t, pair.Access.Token.ID(), pair.Refresh.Token.ID())
	assert.Equal(t, 2, e.store.Len())

	rec, err := e.store.Get(context.Background(), pair.Access.Token.ID())
	require.NoError(t, err)
	assert.Equal(t, testOwnerID, rec.OwnerID)
	assert.Equal(t, store.OwnerCandidate, rec.OwnerKind)
	assert.Equal(t, e.clock.Now(), rec.CreatedAt)
}

func TestIssueRejectsInvalidOwner(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Issue(context.Background(), Owner{ID: testOwnerID, Kind: "guest"})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	_, err = e.IssueFor(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidOwner)
	assert.Zero(t, e.store.Len())
}

func TestTokenPairJSON(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	data, err := json.Marshal(pair)
	require.NoError(t, err)

	var body struct {
		NewTokens []struct {
			Headers map[string]any `json:"headers"`
			Claims  map[string]any `json:"claims"`
			Token   string         `json:"token"`
		} `json:"new_tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.NewTokens, 2)
	assert.Equal(t, "RS512", body.NewTokens[0].Headers["alg"])
	assert.Equal(t, "access", body.NewTokens[0].Claims["typ"])
	assert.Equal(t, "refresh", body.NewTokens[1].Claims["typ"])
	assert.Equal(t, pair.Access.String(), body.NewTokens[0].Token)
}

func TestValidateFreshAccessToken(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	tok, err := e.Parse(pair.Access.String())
	require.NoError(t, err)

	res, err := e.Validate(context.Background(), tok, jwt.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, testOwner, res.Owner)
	assert.Equal(t, jwt.TypeAccess, res.Type)
	assert.Equal(t, pair.Group, res.Group)
}

func TestValidateRejectsWrongType(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	_, err = e.Validate(context.Background(), pair.Refresh.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureTypeMismatch, MessageUnauthorized)

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeRefresh)
	requireAuthz(t, err, FailureTypeMismatch, MessageUnauthorized)
}

func TestValidateMissingTokenAndRecord(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Validate(context.Background(), nil, jwt.TypeAccess)
	requireAuthn(t, err, FailureMissingToken)

	other := newTestEngine(t, nil)
	pair, err := other.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	requireAuthn(t, err, FailureRecordMissing)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestExpiredTokenIsRevokedOnce(t *testing.T) {
	e := newTestEngine(t, nil, func(b *Builder) { b.WithMetricsEnabled(true) })
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	e.clock.Advance(31 * time.Minute)

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureExpired, MessageExpired)
	assert.Equal(t, 1, e.store.RevokedCount())

	revoked, err := e.store.IsRevoked(context.Background(), pair.Access.Token.ID())
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureRevoked, MessageRevoked)
	assert.Equal(t, 1, e.store.RevokedCount())

	snap := e.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricAutoRevoke])
	assert.Equal(t, uint64(1), snap.Counters[MetricValidateExpired])
	assert.Equal(t, uint64(1), snap.Counters[MetricValidateRevoked])
}

func TestSubject42ExpiryTimeline(t *testing.T) {
	e := newTestEngine(t, nil)
	owner := Owner{ID: "42", Kind: store.OwnerCandidate}
	pair, err := e.Issue(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, pair.Access.Token.Claims.ExpiresAt.Before(pair.Refresh.Token.Claims.ExpiresAt))

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	require.NoError(t, err, "T0")

	e.clock.Advance(31 * time.Minute)
	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureExpired, MessageExpired)
	assert.Equal(t, 1, e.store.RevokedCount())

	e.clock.Advance(time.Minute)
	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureRevoked, MessageRevoked)
	assert.Equal(t, 1, e.store.RevokedCount())

	_, err = e.Validate(context.Background(), pair.Refresh.Token, jwt.TypeRefresh)
	require.NoError(t, err, "refresh sibling is not touched by access expiry")
}

func TestForgedExpiredTokenDoesNotRevoke(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	forged, err := e.Parse(pair.Access.Token.SigningInput() + ".AAAA")
	require.NoError(t, err)

	e.clock.Advance(31 * time.Minute)

	_, err = e.Validate(context.Background(), forged, jwt.TypeAccess)
	requireAuthz(t, err, FailureExpired, MessageExpired)
	assert.Zero(t, e.store.RevokedCount())
}

func TestNotYetValidTokenIsNotRevoked(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Tokens.AccessCanBeUsedAfter = 30 * time.Minute
	})
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureNotYetValid, MessageNotYetValid)
	assert.Zero(t, e.store.RevokedCount())
}

func TestLeewayExtendsExpiry(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.JWT.Leeway = time.Minute
	})
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	e.clock.Advance(30*time.Minute + 30*time.Second)

	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	require.NoError(t, err)
}

func TestRefreshRotatesGroup(t *testing.T) {
	e := newTestEngine(t, nil)
	first, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	e.clock.Advance(time.Minute)

	second, err := e.Refresh(context.Background(), first.Refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, testOwner, second.Owner)
	assert.NotEqual(t, first.Group, second.Group)
	assert.Equal(t, 4, e.store.Len())
	assert.Equal(t, 2, e.store.RevokedCount())

	_, err = e.Validate(context.Background(), first.Access.Token, jwt.TypeAccess)
	requireAuthz(t, err, FailureRevoked, MessageRevoked)

	_, err = e.Validate(context.Background(), second.Access.Token, jwt.TypeAccess)
	require.NoError(t, err)

	_, err = e.Refresh(context.Background(), first.Refresh.Token)
	requireAuthz(t, err, FailureRevoked, MessageRevoked)
}

func TestRefreshRequiresRefreshToken(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	_, err = e.Refresh(context.Background(), pair.Access.Token)
	requireAuthz(t, err, FailureTypeMismatch, MessageUnauthorized)
	assert.Zero(t, e.store.RevokedCount())
}

func TestRevokeGroupIsIdempotent(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)
	other, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	require.NoError(t, e.RevokeGroup(context.Background(), pair.Access.Token))
	assert.Equal(t, 2, e.store.RevokedCount())
	require.NoError(t, e.RevokeGroup(context.Background(), pair.Access.Token))
	assert.Equal(t, 2, e.store.RevokedCount())

	_, err = e.Validate(context.Background(), pair.Refresh.Token, jwt.TypeRefresh)
	requireAuthz(t, err, FailureRevoked, MessageRevoked)

	_, err = e.Validate(context.Background(), other.Access.Token, jwt.TypeAccess)
	require.NoError(t, err)
}

func foreignSigner(t *testing.T) *jwt.Manager {
	t.Helper()
	priv, pub, err := jwt.GenerateKeyPEM(2048)
	require.NoError(t, err)
	m, err := jwt.NewManager(jwt.Config{
		Issuer:     "https://api.example.test",
		PrivateKey: priv,
		PublicKey:  pub,
	})
	require.NoError(t, err)
	return m
}

func TestRevokeGroupRejectsForeignSignature(t *testing.T) {
	e := newTestEngine(t, nil)
	victim, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)
	signer := foreignSigner(t)

	t.Run("copied claims", func(t *testing.T) {
		forged, err := signer.Build(victim.Access.Token.Claims.Clone())
		require.NoError(t, err)
		tok, err := e.Parse(forged.String())
		require.NoError(t, err)

		err = e.RevokeGroup(context.Background(), tok)
		requireAuthz(t, err, FailureViolation, jwt.MessageSignature)
	})

	t.Run("fresh jti with victim group", func(t *testing.T) {
		claims := victim.Access.Token.Claims.Clone()
		claims.ID = "0b8e8d1c-3a57-4f0e-9d47-5b6a1c2d3e4f"
		forged, err := signer.Build(claims)
		require.NoError(t, err)
		tok, err := e.Parse(forged.String())
		require.NoError(t, err)

		err = e.RevokeGroup(context.Background(), tok)
		requireAuthn(t, err, FailureRecordMissing)
	})

	assert.Zero(t, e.store.RevokedCount())
	_, err = e.Validate(context.Background(), victim.Access.Token, jwt.TypeAccess)
	require.NoError(t, err)
}

func TestRevokeGroupUnknownTokenIsUnauthenticated(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	claims := pair.Access.Token.Claims.Clone()
	claims.ID = "9c1f7e2a-6b4d-4e8f-a0b1-2c3d4e5f6a7b"
	claims.Custom["grp"] = "5d2c1b0a-9e8f-4a7b-8c6d-5e4f3a2b1c0d"
	stray, err := e.jwt.Build(claims)
	require.NoError(t, err)

	err = e.RevokeGroup(context.Background(), stray)
	requireAuthn(t, err, FailureRecordMissing)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestRevokeByID(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	require.NoError(t, e.Revoke(context.Background(), pair.Access.Token.ID()))
	require.NoError(t, e.Revoke(context.Background(), pair.Access.Token.ID()))
	assert.Equal(t, 1, e.store.RevokedCount())

	err = e.Revoke(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestAuthenticateResolvesSubject(t *testing.T) {
	e := newTestEngine(t, nil)
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	p, err := e.Authenticate(context.Background(), pair.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, testOwnerID, p.AuthIdentifier())

	_, err = e.Authenticate(context.Background(), nil)
	requireAuthn(t, err, FailureMissingToken)

	stranger, err := e.Issue(context.Background(), Owner{ID: "nobody", Kind: store.OwnerAdmin})
	require.NoError(t, err)
	_, err = e.Authenticate(context.Background(), stranger.Access.Token)
	requireAuthn(t, err, FailureUnknownSubject)
}

func TestAuthenticateDirectoryFailureIsNotAuthError(t *testing.T) {
	backend := errors.New("directory offline")
	e := newTestEngine(t, nil, func(b *Builder) {
		b.WithUserDirectory(UserDirectoryFunc(func(context.Context, string) (Principal, error) {
			return nil, backend
		}))
	})
	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)

	_, err = e.Authenticate(context.Background(), pair.Access.Token)
	assert.ErrorIs(t, err, backend)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, "Server Error", PublicMessage(err))
}

func TestParseMalformed(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Parse("not-a-token")
	assert.ErrorIs(t, err, jwt.ErrMalformedToken)
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	_, err := e.Validate(context.Background(), nil, jwt.TypeAccess)
	assert.ErrorIs(t, err, ErrEngineNotReady)
	assert.ErrorIs(t, e.Revoke(context.Background(), "x"), ErrEngineNotReady)
	assert.Zero(t, e.AuditDropped())
	assert.Empty(t, e.MetricsSnapshot().Counters)
}

func TestBuilderRequiresStore(t *testing.T) {
	_, err := New().WithConfig(testConfig(t)).Build()
	assert.EqualError(t, err, "token store required")
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig(t)).WithStore(memory.New(nil))
	_, err := b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	assert.EqualError(t, err, "builder already used")
}
