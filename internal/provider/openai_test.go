package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"agentd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestOpenAIDecide(t *testing.T) {
	var captured oaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: `{"action":"final","content":"done"}`}}},
		})
	}))
	defer server.Close()

	p := NewOpenAI(OpenAIConfig{
		APIKey:  "test-key",
		APIBase: server.URL,
		Model:   "test-model",
		Logger:  testLogger(),
	})

	got, err := p.Decide(context.Background(), domain.DecideRequest{
		Transcript: []domain.Message{
			{Role: domain.RoleSystem, Content: "rules"},
			{Role: domain.RoleUser, Content: "task"},
			{Role: domain.RoleObservation, Content: "tool output"},
		},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !strings.Contains(got, `"action":"final"`) {
		t.Errorf("unexpected decision text: %q", got)
	}

	if captured.Model != "test-model" {
		t.Errorf("model = %q, want test-model", captured.Model)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}
	// Observations travel as user messages on the wire.
	if captured.Messages[2].Role != "user" {
		t.Errorf("observation role on wire = %q, want user", captured.Messages[2].Role)
	}
}

func TestOpenAIDecide_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: server.URL, Logger: testLogger()})

	_, err := p.Decide(context.Background(), domain.DecideRequest{})
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestOpenAIDecide_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{})
	}))
	defer server.Close()

	p := NewOpenAI(OpenAIConfig{APIBase: server.URL, Logger: testLogger()})

	_, err := p.Decide(context.Background(), domain.DecideRequest{})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("expected no-choices error, got %v", err)
	}
}
