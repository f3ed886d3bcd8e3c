package domain

import (
	"context"
	"time"
)

// TraceKind identifies what the loop did at a point in a step.
type TraceKind string

const (
	TraceDecisionRequested TraceKind = "decision_requested"
	TraceDecisionReceived  TraceKind = "decision_received"
	TracePolicyChecked     TraceKind = "policy_checked"
	TraceToolExecuted      TraceKind = "tool_executed"
	TraceToolFailed        TraceKind = "tool_failed"
	TraceFinalReturned     TraceKind = "final_returned"
	TraceStepLimitHit      TraceKind = "step_limit_hit"
)

// TraceEvent is one write-once record in a session's audit trail. Events are
// ordered by step index, then by emission order within the step.
type TraceEvent struct {
	SessionID string         `json:"session_id"`
	Step      int            `json:"step"`
	Kind      TraceKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TraceSink records the ordered event log of everything the loop does.
// Implementations must tolerate concurrent sessions appending at once and
// must not fail the caller: a sink error is the sink's problem, never the
// session's.
type TraceSink interface {
	Record(ctx context.Context, event TraceEvent)
}
