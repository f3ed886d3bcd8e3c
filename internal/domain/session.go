package domain

import "time"

// SessionStatus is the coarse lifecycle state of one control-loop execution.
type SessionStatus string

const (
	StatusRunning          SessionStatus = "running"
	StatusCompleted        SessionStatus = "completed"
	StatusFailed           SessionStatus = "failed"
	StatusStepLimitReached SessionStatus = "step_limit_reached"
)

// IsTerminal reports whether the session can make no further progress.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStepLimitReached:
		return true
	default:
		return false
	}
}

// SessionConfig is the immutable configuration snapshot taken when a session
// starts. Policy and registry changes after that point never apply to it.
type SessionConfig struct {
	MaxSteps            int           `json:"max_steps"`
	StepTimeout         time.Duration `json:"step_timeout,omitempty"`
	SessionTimeout      time.Duration `json:"session_timeout,omitempty"`
	MaxObservationBytes int           `json:"max_observation_bytes"`
	MaxTranscriptBytes  int           `json:"max_transcript_bytes,omitempty"`
	DecisionRetries     int           `json:"decision_retries"`
}

// SessionStats counts what the loop actually did.
type SessionStats struct {
	Steps             int   `json:"steps"`
	ToolCalls         int   `json:"tool_calls"`
	ToolErrors        int   `json:"tool_errors"`
	PolicyDenials     int   `json:"policy_denials"`
	ProviderLatencyMs int64 `json:"provider_latency_ms"`
}

// Session is one end-to-end execution of the control loop for a single task.
// It is owned exclusively by the runtime instance executing it; the transcript
// and step counter have a single writer.
type Session struct {
	ID         string        `json:"id"`
	Task       string        `json:"task"`
	Status     SessionStatus `json:"status"`
	Step       int           `json:"step"`
	Transcript []Message     `json:"transcript"`
	Config     SessionConfig `json:"config"`
	Stats      SessionStats  `json:"stats"`
	Answer     string        `json:"answer,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at,omitempty"`
}
