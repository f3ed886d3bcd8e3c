package trace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestSQLiteSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "trace.db"), testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestSQLiteSink_RecordAndRead(t *testing.T) {
	sink := newTestSQLiteSink(t)
	ctx := context.Background()

	sink.Record(ctx, domain.TraceEvent{
		SessionID: "s1",
		Step:      0,
		Kind:      domain.TraceDecisionRequested,
		Payload:   map[string]any{"provider": "scripted"},
		Timestamp: time.Now(),
	})
	sink.Record(ctx, domain.TraceEvent{
		SessionID: "s1",
		Step:      0,
		Kind:      domain.TraceDecisionReceived,
		Timestamp: time.Now(),
	})
	sink.Record(ctx, domain.TraceEvent{
		SessionID: "other",
		Step:      0,
		Kind:      domain.TraceFinalReturned,
		Timestamp: time.Now(),
	})

	events, err := sink.SessionEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for s1, got %d", len(events))
	}
	if events[0].Kind != domain.TraceDecisionRequested || events[1].Kind != domain.TraceDecisionReceived {
		t.Errorf("events out of order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[0].Payload["provider"] != "scripted" {
		t.Errorf("payload not round-tripped: %v", events[0].Payload)
	}
}

func TestSQLiteSink_OrderedByStep(t *testing.T) {
	sink := newTestSQLiteSink(t)
	ctx := context.Background()

	for step := 2; step >= 0; step-- {
		sink.Record(ctx, domain.TraceEvent{
			SessionID: "s1",
			Step:      step,
			Kind:      domain.TracePolicyChecked,
			Timestamp: time.Now(),
		})
	}

	events, err := sink.SessionEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	for i, ev := range events {
		if ev.Step != i {
			t.Errorf("events[%d].Step = %d, want %d", i, ev.Step, i)
		}
	}
}

func TestSQLiteSink_RecordAfterCloseDoesNotPanic(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "trace.db"), testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	sink.Close()

	// Sinks must never fail the caller.
	sink.Record(context.Background(), domain.TraceEvent{
		SessionID: "s1",
		Kind:      domain.TraceFinalReturned,
		Timestamp: time.Now(),
	})
}

func TestMemorySink_Isolation(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	sink.Record(ctx, domain.TraceEvent{SessionID: "a", Kind: domain.TraceFinalReturned})
	sink.Record(ctx, domain.TraceEvent{SessionID: "b", Kind: domain.TraceStepLimitHit})

	if got := len(sink.SessionEvents("a")); got != 1 {
		t.Errorf("expected 1 event for a, got %d", got)
	}
	if got := len(sink.Events()); got != 2 {
		t.Errorf("expected 2 events total, got %d", got)
	}
}

func TestMultiSink_FansOut(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	multi := MultiSink{a, b}

	multi.Record(context.Background(), domain.TraceEvent{SessionID: "s", Kind: domain.TraceToolExecuted})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("fan-out incomplete: %d, %d", len(a.Events()), len(b.Events()))
	}
}

func TestStreamSink_DeliversAndDrops(t *testing.T) {
	sink := NewStreamSink(1, testLogger())
	defer sink.Close()

	sub := sink.Subscribe()
	ctx := context.Background()

	sink.Record(ctx, domain.TraceEvent{SessionID: "s", Step: 0, Kind: domain.TraceDecisionRequested})
	// Buffer is full: this one is dropped, not blocking.
	sink.Record(ctx, domain.TraceEvent{SessionID: "s", Step: 0, Kind: domain.TraceDecisionReceived})

	ev := <-sub
	if ev.Kind != domain.TraceDecisionRequested {
		t.Errorf("unexpected event: %s", ev.Kind)
	}
	select {
	case extra, ok := <-sub:
		if ok {
			t.Errorf("expected dropped event, received %s", extra.Kind)
		}
	default:
	}
}

func TestStreamSink_CloseClosesSubscribers(t *testing.T) {
	sink := NewStreamSink(4, testLogger())
	sub := sink.Subscribe()
	sink.Close()

	if _, ok := <-sub; ok {
		t.Error("subscriber channel must close with the sink")
	}
}
