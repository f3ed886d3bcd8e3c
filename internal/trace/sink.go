// Package trace records the append-only audit log of everything the control
// loop does. Sinks never fail the hot path: a recording error is logged once
// and otherwise swallowed, so tracing can never abort a session.
package trace

import (
	"context"
	"encoding/json"
	"log/slog"

	"agentd/internal/domain"
)

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(context.Context, domain.TraceEvent) {}

// SlogSink mirrors trace events to a structured logger at debug level.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Record(ctx context.Context, event domain.TraceEvent) {
	payload, _ := json.Marshal(event.Payload)
	s.logger.LogAttrs(ctx, slog.LevelDebug, string(event.Kind),
		slog.String("session", event.SessionID),
		slog.Int("step", event.Step),
		slog.String("payload", string(payload)),
	)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []domain.TraceSink

func (m MultiSink) Record(ctx context.Context, event domain.TraceEvent) {
	for _, sink := range m {
		sink.Record(ctx, event)
	}
}

var (
	_ domain.TraceSink = NopSink{}
	_ domain.TraceSink = (*SlogSink)(nil)
	_ domain.TraceSink = MultiSink(nil)
)
