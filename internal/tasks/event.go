package tasks

import (
	"context"
	"time"

	"scanpipe/internal/pipeline"
)

// EventKind enumerates lifecycle notifications for a task run.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventSuccess  EventKind = "success"
	EventError    EventKind = "error"
	EventFinished EventKind = "finished"
)

// Event is one lifecycle notification. Events for a single run are delivered
// in order; there is no ordering across items.
type Event struct {
	Kind       EventKind
	RunID      string
	ItemID     int64
	Identifier string
	Task       pipeline.Task
	Message    string
	Err        error
	Outcome    Outcome
	Time       time.Time
}

// Sink receives lifecycle events. Implementations must be safe for concurrent
// use because runs for different items report in parallel.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// ChanSink delivers events on a channel. Delivery blocks until the receiver
// is ready or ctx is done, so a slow consumer applies backpressure rather
// than losing events.
type ChanSink struct {
	ctx context.Context
	ch  chan<- Event
}

// NewChanSink returns a Sink that writes to ch until ctx is done.
func NewChanSink(ctx context.Context, ch chan<- Event) *ChanSink {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ChanSink{ctx: ctx, ch: ch}
}

func (s *ChanSink) Emit(evt Event) {
	if s == nil || s.ch == nil {
		return
	}
	select {
	case s.ch <- evt:
	case <-s.ctx.Done():
	}
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(evt Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(evt)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}
