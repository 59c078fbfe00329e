package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestHubHandlerCapturesBoundAttrs(t *testing.T) {
	hub := NewStreamHub(16)
	logger := slog.New(NewHubHandler(hub, nil)).
		With(slog.String(FieldCollectionID, "UP001234")).
		With(slog.Int64(FieldItemID, 42))

	logger.Info("task started", slog.String(FieldTask, "rename"), slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.ItemID != 42 {
		t.Fatalf("expected item_id=42, got %d", evt.ItemID)
	}
	if evt.CollectionID != "UP001234" {
		t.Fatalf("expected collection id, got %q", evt.CollectionID)
	}
	if evt.Task != "rename" {
		t.Fatalf("expected task=rename, got %q", evt.Task)
	}
	if evt.Fields["extra"] != "value" {
		t.Fatalf("expected extra field, got %#v", evt.Fields)
	}
	if evt.Sequence != 1 {
		t.Fatalf("expected first sequence, got %d", evt.Sequence)
	}
}

func TestHubHandlerCallSiteOverridesBoundAttrs(t *testing.T) {
	hub := NewStreamHub(16)
	logger := slog.New(NewHubHandler(hub, nil)).With(slog.String(FieldTask, "rename"))

	logger.Info("message", slog.String(FieldTask, "copy"))

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Task != "copy" {
		t.Fatalf("expected call-site task to win, got %#v", events)
	}
}

func TestHubHandlerRespectsLevel(t *testing.T) {
	hub := NewStreamHub(16)
	handler := NewHubHandler(hub, slog.LevelWarn)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info to be disabled at warn level")
	}
	slog.New(handler).Info("dropped")
	slog.New(handler).Warn("kept")

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Message != "kept" {
		t.Fatalf("expected only the warning, got %#v", events)
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(2)
	for _, msg := range []string{"a", "b", "c"} {
		hub.Publish(LogEvent{Message: msg})
	}

	events, last := hub.Tail(0)
	if len(events) != 2 || events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("unexpected buffer contents: %#v", events)
	}
	if last != 3 {
		t.Fatalf("expected last sequence 3, got %d", last)
	}
	if first := hub.FirstSequence(); first != 2 {
		t.Fatalf("expected first sequence 2, got %d", first)
	}
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := NewStreamHub(8)
	hub.Publish(LogEvent{Message: "one"})
	hub.Publish(LogEvent{Message: "two"})

	events, next, err := hub.Fetch(context.Background(), 1, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "two" || next != 2 {
		t.Fatalf("unexpected fetch result: %#v next=%d", events, next)
	}
}

func TestStreamHubFetchWaitHonoursCancel(t *testing.T) {
	hub := NewStreamHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 0, true)
	if err == nil {
		t.Fatal("expected context error when no events arrive")
	}
}

type recordingSink struct{ events []LogEvent }

func (r *recordingSink) Append(evt LogEvent) { r.events = append(r.events, evt) }

func TestStreamHubSinkReceivesEvents(t *testing.T) {
	hub := NewStreamHub(8)
	sink := &recordingSink{}
	hub.AddSink(sink)

	hub.Publish(LogEvent{Message: "hello"})

	if len(sink.events) != 1 || sink.events[0].Sequence != 1 {
		t.Fatalf("expected sink to receive sequenced event, got %#v", sink.events)
	}
}
