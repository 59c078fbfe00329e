package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Task          string            `json:"task,omitempty"`
	ItemID        int64             `json:"item_id,omitempty"`
	Identifier    string            `json:"identifier,omitempty"`
	CollectionID  string            `json:"collection_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub stores recent log events and wakes waiters when new events arrive.
type StreamHub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []LogEvent
	nextSeq  uint64
	sinks    []LogEventSink
}

// NewStreamHub constructs a bounded in-memory log fan-out buffer.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &StreamHub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// LogEventSink receives published log events (for persistence, etc.).
type LogEventSink interface {
	Append(LogEvent)
}

// AddSink wires an additional sink that receives every published event.
func (h *StreamHub) AddSink(sink LogEventSink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish appends a new log event to the hub.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	sinks := append([]LogEventSink(nil), h.sinks...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
}

// Fetch returns all events with sequence greater than since. When wait is true,
// Fetch blocks until at least one event is available or the context ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]LogEvent, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

// FirstSequence reports the smallest sequence number still buffered.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return h.nextSeq
	}
	return h.buffer[0].Sequence
}

func (h *StreamHub) snapshotLocked(since uint64, limit int) ([]LogEvent, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	startIdx := 0
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
		if i == len(h.buffer)-1 {
			return nil, h.nextSeq
		}
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	out := make([]LogEvent, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, h.nextSeq
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// HubHandler is a terminal slog.Handler that publishes every enabled record
// to a StreamHub. Combine it with TeeLogger to mirror an existing logger.
type HubHandler struct {
	hub   *StreamHub
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHubHandler returns a handler publishing to hub. A nil level accepts
// everything at info and above.
func NewHubHandler(hub *StreamHub, level slog.Leveler) *HubHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &HubHandler{hub: hub, level: level}
}

func (h *HubHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.hub != nil && level >= h.level.Level()
}

func (h *HubHandler) Handle(_ context.Context, record slog.Record) error {
	if h.hub == nil {
		return nil
	}
	h.hub.Publish(eventFromRecord(record, h.attrs, h.group))
	return nil
}

func (h *HubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	for _, attr := range attrs {
		if h.group != "" {
			attr.Key = h.group + "." + attr.Key
		}
		next = append(next, attr)
	}
	return &HubHandler{hub: h.hub, level: h.level, attrs: next, group: h.group}
}

func (h *HubHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" && name != "" {
		group = h.group + "." + name
	}
	return &HubHandler{hub: h.hub, level: h.level, attrs: h.attrs, group: group}
}

func eventFromRecord(record slog.Record, preAttrs []slog.Attr, group string) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}

	kvs := make([]kv, 0, len(preAttrs)+record.NumAttrs())
	flattenAttrs(&kvs, nil, preAttrs)
	var prefix []string
	if group != "" {
		prefix = []string{group}
	}
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, prefix, attr)
		return true
	})

	// Call-site attrs come last so they override bound attrs.
	for _, kv := range kvs {
		key := strings.TrimSpace(kv.key)
		if key == "" {
			continue
		}
		switch key {
		case FieldItemID:
			if kv.value.Kind() == slog.KindInt64 {
				event.ItemID = kv.value.Int64()
			}
		case FieldTask:
			event.Task = attrString(kv.value)
		case FieldIdentifier:
			event.Identifier = attrString(kv.value)
		case FieldCollectionID:
			event.CollectionID = attrString(kv.value)
		case FieldCorrelationID:
			event.CorrelationID = attrString(kv.value)
		case FieldComponent:
			event.Component = attrString(kv.value)
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[key] = attrString(kv.value)
		}
	}
	return event
}
