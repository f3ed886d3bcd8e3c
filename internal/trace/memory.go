package trace

import (
	"context"
	"sync"

	"agentd/internal/domain"
)

// MemorySink captures events in memory and exposes deterministic snapshots.
// Used by tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []domain.TraceEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{events: make([]domain.TraceEvent, 0)}
}

func (s *MemorySink) Record(_ context.Context, event domain.TraceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
}

// Events returns a copy of everything recorded so far, in emission order.
func (s *MemorySink) Events() []domain.TraceEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TraceEvent, len(s.events))
	for i := range s.events {
		out[i] = cloneEvent(s.events[i])
	}
	return out
}

// SessionEvents returns recorded events for one session, in emission order.
func (s *MemorySink) SessionEvents(sessionID string) []domain.TraceEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TraceEvent
	for i := range s.events {
		if s.events[i].SessionID == sessionID {
			out = append(out, cloneEvent(s.events[i]))
		}
	}
	return out
}

func cloneEvent(in domain.TraceEvent) domain.TraceEvent {
	out := in
	if in.Payload != nil {
		out.Payload = make(map[string]any, len(in.Payload))
		for k, v := range in.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

var _ domain.TraceSink = (*MemorySink)(nil)
