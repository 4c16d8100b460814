package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	OwnerID   string            `json:"owner_id,omitempty"`
	OwnerKind string            `json:"owner_kind,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	TokenType string            `json:"token_type,omitempty"`
	Group     string            `json:"group,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}

// Fields flattens e into key/value pairs for structured loggers. Empty values are omitted.
func (e Event) Fields() map[string]any {
	out := make(map[string]any, 8+len(e.Metadata))
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("event_type", e.EventType)
	put("owner_id", e.OwnerID)
	put("owner_kind", e.OwnerKind)
	put("token_id", e.TokenID)
	put("token_type", e.TokenType)
	put("group", e.Group)
	put("ip", e.IP)
	put("error", e.Error)
	out["success"] = e.Success
	for k, v := range e.Metadata {
		put("meta_"+k, v)
	}
	return out
}
