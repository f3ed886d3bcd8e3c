package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"agentd/internal/domain"
)

// OpenAI implements domain.DecisionProvider against OpenAI-compatible chat
// APIs (also covers ollama's /v1 endpoint). The tool catalog travels inside
// the request as plain messages: the runtime's action protocol is
// JSON-in-text, so no function-calling plumbing is involved.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  newHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Decide sends the transcript and returns the raw decision text. The runtime
// owns parsing; this boundary never interprets the content.
func (o *OpenAI) Decide(ctx context.Context, req domain.DecideRequest) (string, error) {
	msgs := make([]oaiMessage, 0, len(req.Transcript))
	for _, m := range req.Transcript {
		role := string(m.Role)
		// tool observations ride as user messages: the JSON-in-text protocol
		// has no tool role on the wire.
		if m.Role == domain.RoleObservation {
			role = "user"
		}
		msgs = append(msgs, oaiMessage{Role: role, Content: m.Content})
	}

	jsonBody, err := json.Marshal(oaiRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("decision provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("decision provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

var _ domain.DecisionProvider = (*OpenAI)(nil)
