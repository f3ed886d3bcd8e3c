package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration for agentd.
type Config struct {
	General  GeneralConfig            `json:"general"`
	Provider ProviderSelection        `json:"provider"`
	Backends map[string]BackendConfig `json:"backends"`
	Policy   PolicyConfig             `json:"policy"`
	Memory   MemoryConfig             `json:"memory"`
	Trace    TraceConfig              `json:"trace"`
	Tools    ToolsConfig              `json:"tools"`
}

type GeneralConfig struct {
	Workspace           string `json:"workspace"`
	LogLevel            string `json:"logLevel"`
	LogFormat           string `json:"logFormat,omitempty"` // "text" | "json"
	MaxSteps            int    `json:"maxSteps"`
	StepTimeoutSeconds  int    `json:"stepTimeoutSeconds,omitempty"`    // 0 = no per-step deadline
	SessionTimeoutSecs  int    `json:"sessionTimeoutSeconds,omitempty"` // 0 = no session deadline
	MaxObservationBytes int    `json:"maxObservationBytes"`
	MaxTranscriptBytes  int    `json:"maxTranscriptBytes,omitempty"` // 0 = no transcript window
	DecisionRetries     int    `json:"decisionRetries"`              // transport retries per step
}

// ProviderSelection picks the decision backend for new sessions.
type ProviderSelection struct {
	Default string `json:"default"`
}

type BackendConfig struct {
	Enabled        bool   `json:"enabled"`
	APIBase        string `json:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// PolicyConfig is the authorization snapshot handed to new sessions. It is
// read-only during a session; edits apply only to sessions started later.
type PolicyConfig struct {
	AllowNetwork   bool     `json:"allowNetwork"`
	AllowedDomains []string `json:"allowedDomains,omitempty"` // glob patterns, e.g. "*.example.com"
	AllowWrites    bool     `json:"allowWrites"`
	DenyTools      []string `json:"denyTools,omitempty"` // glob patterns on tool names
	RulesFile      string   `json:"rulesFile,omitempty"` // optional YAML rules supplement
}

type MemoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	SearchLimit   int    `json:"searchLimit"`
	RetentionDays int    `json:"retentionDays"`
}

type TraceConfig struct {
	DBPath  string `json:"dbPath,omitempty"` // empty disables the sqlite sink
	LogSink bool   `json:"logSink"`          // mirror events to the logger at debug
}

type ToolsConfig struct {
	Fetch FetchToolConfig `json:"fetch"`
	File  FileToolConfig  `json:"file"`
}

type FetchToolConfig struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
	MaxBodyBytes   int `json:"maxBodyBytes"`
}

type FileToolConfig struct {
	MaxReadBytes int `json:"maxReadBytes"`
}

// StepTimeout returns the per-step deadline, or zero when disabled.
func (g GeneralConfig) StepTimeout() time.Duration {
	return time.Duration(g.StepTimeoutSeconds) * time.Second
}

// SessionTimeout returns the session deadline, or zero when disabled.
func (g GeneralConfig) SessionTimeout() time.Duration {
	return time.Duration(g.SessionTimeoutSecs) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.agentd).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentd"
	}
	return filepath.Join(home, ".agentd")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Trace.DBPath = ExpandPath(cfg.Trace.DBPath)
	cfg.Policy.RulesFile = ExpandPath(cfg.Policy.RulesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxSteps < 1 || cfg.General.MaxSteps > 200 {
		errs = append(errs, "general.maxSteps must be between 1 and 200")
	}
	if cfg.General.MaxObservationBytes < 1 {
		errs = append(errs, "general.maxObservationBytes must be >= 1")
	}
	if cfg.General.DecisionRetries < 0 || cfg.General.DecisionRetries > 5 {
		errs = append(errs, "general.decisionRetries must be between 0 and 5")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
		// valid
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Memory.Enabled && cfg.Memory.DBPath == "" {
		errs = append(errs, "memory.dbPath is required when memory is enabled")
	}
	if cfg.Memory.SearchLimit < 0 {
		errs = append(errs, "memory.searchLimit must be >= 0")
	}

	if cfg.Provider.Default != "" {
		if _, ok := cfg.Backends[cfg.Provider.Default]; !ok {
			errs = append(errs, fmt.Sprintf("provider.default references unknown backend: %s", cfg.Provider.Default))
		}
	}
	for name, bc := range cfg.Backends {
		if bc.Enabled && bc.APIBase == "" && name != "ollama" {
			errs = append(errs, fmt.Sprintf("backends.%s: apiBase is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
