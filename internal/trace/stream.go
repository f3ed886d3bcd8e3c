package trace

import (
	"context"
	"log/slog"
	"sync"

	"agentd/internal/domain"
)

// StreamSink fans trace events out to in-process subscribers so observers can
// tail a session's audit trail live, independently of the runtime's lifetime.
// A slow subscriber loses events rather than stalling the loop.
type StreamSink struct {
	mu          sync.RWMutex
	subscribers []chan domain.TraceEvent
	closed      bool
	bufferSize  int
	logger      *slog.Logger
}

func NewStreamSink(bufferSize int, logger *slog.Logger) *StreamSink {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &StreamSink{
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe returns a channel receiving every event recorded after the call.
// The channel is closed when the sink is closed.
func (s *StreamSink) Subscribe() <-chan domain.TraceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.TraceEvent, s.bufferSize)
	if s.closed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *StreamSink) Record(_ context.Context, event domain.TraceEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- cloneEvent(event):
		default:
			s.logger.Warn("trace subscriber full, dropping event",
				"session", event.SessionID,
				"kind", event.Kind,
			)
		}
	}
}

func (s *StreamSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

var _ domain.TraceSink = (*StreamSink)(nil)
