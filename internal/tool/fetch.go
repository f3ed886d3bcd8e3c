package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentd/internal/domain"
)

// FetchTool performs an HTTP GET. Classified network; the policy gate checks
// the target domain against the allowed-domain patterns.
type FetchTool struct {
	client   *http.Client
	maxBytes int
}

type FetchConfig struct {
	Timeout  time.Duration
	MaxBytes int
}

func NewFetchTool(cfg FetchConfig) *FetchTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	return &FetchTool{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
	}
}

func (t *FetchTool) Name() string { return "web_fetch" }

func (t *FetchTool) Description() string {
	return "Fetch the contents of an http(s) URL and return the response body as text."
}

func (t *FetchTool) Schema() map[string]any {
	return Parameters(
		map[string]Param{
			"url": {Type: "string", Description: "Absolute http or https URL to fetch"},
		},
		[]string{"url"},
	)
}

func (t *FetchTool) Risk() domain.RiskClass { return domain.RiskNetwork }

// Target reports the hostname for policy evaluation.
func (t *FetchTool) Target(args map[string]any) string {
	parsed, err := url.Parse(strings.TrimSpace(ArgString(args, "url")))
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func (t *FetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	raw := strings.TrimSpace(ArgString(args, "url"))
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", raw, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: HTTP %d: %s", raw, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

var (
	_ domain.Tool         = (*FetchTool)(nil)
	_ domain.PolicyTarget = (*FetchTool)(nil)
)
