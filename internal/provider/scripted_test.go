package provider

import (
	"context"
	"errors"
	"testing"

	"agentd/internal/domain"
)

func TestScriptedReplaysInOrder(t *testing.T) {
	s := NewScripted(
		Response{Text: "first"},
		Response{Text: "second"},
	)

	for i, want := range []string{"first", "second"} {
		got, err := s.Decide(context.Background(), domain.DecideRequest{})
		if err != nil {
			t.Fatalf("decision %d: %v", i, err)
		}
		if got != want {
			t.Errorf("decision %d = %q, want %q", i, got, want)
		}
	}
	if s.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", s.Calls())
	}
}

func TestScriptedReturnsConfiguredError(t *testing.T) {
	boom := errors.New("model unavailable")
	s := NewScripted(Response{Err: boom})

	_, err := s.Decide(context.Background(), domain.DecideRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected configured error, got %v", err)
	}
}

func TestScriptedExhaustion(t *testing.T) {
	s := NewScripted(Response{Text: "only one"})

	if _, err := s.Decide(context.Background(), domain.DecideRequest{}); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	if _, err := s.Decide(context.Background(), domain.DecideRequest{}); err == nil {
		t.Fatal("expected error after script exhaustion")
	}
}
