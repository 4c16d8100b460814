package goToken

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goToken/jwt"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func withAudit(sink AuditSink) func(*Builder) {
	return func(b *Builder) {
		b.config.Audit.Enabled = true
		b.config.Audit.BufferSize = 32
		b.config.Audit.DropIfFull = false
		b.WithAuditSink(sink)
	}
}

func collect(t *testing.T, sink *ChannelSink, n int) []AuditEvent {
	t.Helper()
	events := make([]AuditEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("expected %d audit events, got %d", n, len(events))
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	e := newTestEngine(t, nil, func(b *Builder) { b.WithAuditSink(sink) })

	_, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)
	e.Close()

	assert.Zero(t, sink.Count())
}

func TestAuditIssueEventCarriesRequestFields(t *testing.T) {
	sink := NewChannelSink(8)
	e := newTestEngine(t, nil, withAudit(sink))

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "curl/8.0")
	pair, err := e.Issue(ctx, testOwner)
	require.NoError(t, err)

	ev := collect(t, sink, 1)[0]
	assert.Equal(t, auditEventTokenIssued, ev.EventType)
	assert.True(t, ev.Success)
	assert.Equal(t, "198.51.100.33", ev.IP)
	assert.Equal(t, testOwnerID, ev.OwnerID)
	assert.Equal(t, "candidate", ev.OwnerKind)
	assert.Equal(t, pair.Group, ev.Group)
	assert.Equal(t, "curl/8.0", ev.Metadata["user_agent"])
	assert.Equal(t, e.clock.Now(), ev.Timestamp)
}

func TestAuditExpiryEmitsAutoRevokeThenFailure(t *testing.T) {
	sink := NewChannelSink(8)
	e := newTestEngine(t, nil, withAudit(sink))

	pair, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)
	e.clock.Advance(31 * time.Minute)
	_, err = e.Validate(context.Background(), pair.Access.Token, jwt.TypeAccess)
	require.Error(t, err)

	events := collect(t, sink, 3)
	assert.Equal(t, auditEventTokenIssued, events[0].EventType)
	assert.Equal(t, auditEventTokenAutoRevoked, events[1].EventType)
	assert.Equal(t, pair.Access.Token.ID(), events[1].TokenID)
	assert.Equal(t, auditEventValidationFailed, events[2].EventType)
	assert.Equal(t, string(auditErrExpired), events[2].Error)
	assert.Equal(t, MessageExpired, events[2].Metadata["message"])
}

func TestAuditNoTokensInEvents(t *testing.T) {
	sink := NewChannelSink(16)
	e := newTestEngine(t, nil, withAudit(sink))

	first, err := e.Issue(context.Background(), testOwner)
	require.NoError(t, err)
	second, err := e.Refresh(context.Background(), first.Refresh.Token)
	require.NoError(t, err)
	require.NoError(t, e.RevokeGroup(context.Background(), second.Access.Token))

	needles := []string{
		first.Access.String(), first.Refresh.String(),
		second.Access.String(), second.Refresh.String(),
	}
	for _, ev := range collect(t, sink, 3) {
		for _, needle := range needles {
			assert.NotContains(t, ev.Error, needle)
			for k, v := range ev.Metadata {
				assert.NotContains(t, k, needle)
				assert.NotContains(t, v, needle)
			}
		}
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventTokenRevoked,
		OwnerID:   "u1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	assert.True(t, buf.Contains(`"event_type":"token_revoked"`))
	assert.True(t, buf.Contains(`"owner_id":"u1"`))
	assert.True(t, buf.Contains("}\n"))
}

func TestLogrusSinkLevels(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	sink := NewLogrusSink(logger)

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventTokenIssued, Success: true, OwnerID: "u1"})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventValidationFailed, Error: "expired"})

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.InfoLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, "u1", hook.AllEntries()[0].Data["owner_id"])
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "expired", hook.LastEntry().Data["error"])
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf.Bytes(), []byte(v))
}
