package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace:           "~/.agentd/workspace",
			LogLevel:            "info",
			LogFormat:           "text",
			MaxSteps:            16,
			StepTimeoutSeconds:  60,
			MaxObservationBytes: 16384,
			MaxTranscriptBytes:  65536,
			DecisionRetries:     1,
		},
		Provider: ProviderSelection{
			Default: "openai",
		},
		Backends: map[string]BackendConfig{
			"openai": {
				Enabled:        true,
				APIBase:        "https://api.openai.com/v1",
				APIKey:         "${OPENAI_API_KEY}",
				Model:          "gpt-4o-mini",
				TimeoutSeconds: 60,
			},
			"ollama": {
				Enabled: false,
				APIBase: "http://localhost:11434/v1",
				Model:   "llama3.1:8b",
			},
		},
		Policy: PolicyConfig{
			AllowNetwork:   false,
			AllowedDomains: nil,
			AllowWrites:    false,
			DenyTools:      nil,
		},
		Memory: MemoryConfig{
			Enabled:       true,
			DBPath:        "~/.agentd/memory.db",
			SearchLimit:   3,
			RetentionDays: 365,
		},
		Trace: TraceConfig{
			DBPath:  "~/.agentd/trace.db",
			LogSink: true,
		},
		Tools: ToolsConfig{
			Fetch: FetchToolConfig{
				TimeoutSeconds: 15,
				MaxBodyBytes:   1 << 20,
			},
			File: FileToolConfig{
				MaxReadBytes: 1 << 20,
			},
		},
	}
}
