package provider

import (
	"context"
	"fmt"
	"sync"

	"agentd/internal/domain"
)

// Response configures one scripted decision.
type Response struct {
	Text string
	Err  error
}

// Scripted is a deterministic decision provider that replays a fixed sequence
// of responses.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
}

func NewScripted(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{responses: cloned}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Decide(_ context.Context, _ domain.DecideRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.responses) {
		return "", fmt.Errorf("script exhausted at decision %d", s.index+1)
	}
	current := s.responses[s.index]
	s.index++
	if current.Err != nil {
		return "", current.Err
	}
	return current.Text, nil
}

// Calls returns how many decisions have been consumed.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

var _ domain.DecisionProvider = (*Scripted)(nil)
