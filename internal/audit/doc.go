// Package audit implements async event dispatching for token lifecycle operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: ordered async relay with drop-if-full / block-if-full semantics. It
//     survives panicking sinks and logs drops and sink failures through logrus.
//   - [Event]: structured audit record with timestamp, type, owner, token id, group, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goToken or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
