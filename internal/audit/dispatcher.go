package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Config controls how the dispatcher queues token lifecycle events.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request when the queue is full.
	DropIfFull bool
	// Logger receives drop warnings and sink panics. Nil discards them.
	Logger logrus.FieldLogger
}

// Dispatcher moves audit events off the request path and hands them to a Sink on
// one goroutine, in the order they were queued.
//
// A nil *Dispatcher is valid and discards every event.
type Dispatcher struct {
	sink       Sink
	log        logrus.FieldLogger
	dropIfFull bool

	queue   chan Event
	closing chan struct{}
	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	log := cfg.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(nopWriter{})
		log = discard
	}

	d := &Dispatcher{
		sink:       sink,
		log:        log.WithField("component", "audit"),
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		closing:    make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.closing:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver hands ev to the sink. A panicking sink loses that one event; later
// events are still delivered.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.log.WithFields(logrus.Fields{
				"event_type": ev.EventType,
				"token_id":   ev.TokenID,
			}).WithError(fmt.Errorf("%v", r)).Error("Audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit queues ev. With DropIfFull a full queue drops ev and counts it; otherwise Emit
// blocks until there is room, ctx is done, or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.closing:
		default:
			if n := d.dropped.Add(1); n == 1 || n%1000 == 0 {
				d.log.WithFields(logrus.Fields{
					"event_type": ev.EventType,
					"dropped":    n,
				}).Warn("Audit queue full; dropping events")
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.closing:
	}
}

// Close delivers whatever is queued and stops the goroutine. Events emitted after
// Close are discarded.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.closing)
		<-d.stopped
	})
}

// Dropped counts events lost to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Failed counts events whose sink call panicked.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
