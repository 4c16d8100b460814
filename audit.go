package goToken

import (
	"io"

	internalaudit "github.com/MrEthical07/goToken/internal/audit"
)

// AuditEvent is the structured record delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the asynchronous dispatcher.
//
// Emit runs on the dispatcher goroutine, never on the request path.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
