// Package agent implements the tool-use control loop: the state machine that
// turns a task into a sequence of model decisions, policy-gated tool
// invocations, and a final answer, with bounded iteration and full tracing.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agentd/internal/domain"
	"agentd/internal/metrics"
	"agentd/internal/policy"
	"agentd/internal/tool"
	"agentd/internal/trace"
)

// stepLimitAnswer is returned when the loop ends without a final action and
// no assistant content exists to fall back on.
const stepLimitAnswer = "unable to complete the task within the step limit"

// Runtime drives sessions through the control loop. One Runtime serves many
// sessions, but each Session is owned by exactly one Run call: the transcript
// and step counter have a single writer.
type Runtime struct {
	provider domain.DecisionProvider
	tools    *tool.Registry
	gate     *policy.Gate
	prompt   *PromptBuilder
	memory   domain.MemoryStore
	trace    domain.TraceSink
	logger   *slog.Logger
	config   domain.SessionConfig
}

// RuntimeConfig holds all dependencies and tuning parameters for the loop.
type RuntimeConfig struct {
	Provider domain.DecisionProvider
	Tools    *tool.Registry
	Gate     *policy.Gate
	Memory   domain.MemoryStore // optional
	Trace    domain.TraceSink   // optional, defaults to NopSink
	Logger   *slog.Logger
	Session  domain.SessionConfig

	// MemorySearchLimit caps retrieved context snippets per session.
	MemorySearchLimit int
}

// NewRuntime creates a Runtime. The session configuration is snapshotted into
// every session it starts.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	lgr := cfg.Logger
	if lgr == nil {
		lgr = slog.Default()
	}
	sink := cfg.Trace
	if sink == nil {
		sink = trace.NopSink{}
	}
	if cfg.Session.MaxSteps <= 0 {
		cfg.Session.MaxSteps = 16
	}
	return &Runtime{
		provider: cfg.Provider,
		tools:    cfg.Tools,
		gate:     cfg.Gate,
		prompt:   NewPromptBuilder(cfg.Gate.Summary(), cfg.Memory, cfg.MemorySearchLimit, lgr),
		memory:   cfg.Memory,
		trace:    sink,
		logger:   lgr,
		config:   cfg.Session,
	}
}

// Run executes one task to a terminal session. The returned session is always
// non-nil and terminal; the error is non-nil only when the status is failed.
func (r *Runtime) Run(ctx context.Context, task string) (*domain.Session, error) {
	if r.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.SessionTimeout)
		defer cancel()
	}

	catalog := r.tools.Catalog()
	session := &domain.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Task:      task,
		Status:    domain.StatusRunning,
		Config:    r.config,
		StartedAt: time.Now(),
	}
	session.Transcript = r.prompt.InitialTranscript(ctx, task, catalog)
	r.persistTurn(ctx, session.ID, session.Transcript[len(session.Transcript)-1])

	metrics.SessionsTotal.Inc()
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	r.logger.Info("session started",
		"session", session.ID,
		"provider", r.provider.Name(),
		"max_steps", r.config.MaxSteps,
	)

	for step := 0; step < r.config.MaxSteps; step++ {
		// Cancellation is checked at step boundaries: no new work starts
		// after the context is done, but in-flight work is not preempted.
		if err := ctx.Err(); err != nil {
			if r.config.SessionTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
				// The session deadline ends the loop early like an exhausted
				// step budget, with a best-effort answer.
				return r.stepLimit(session), nil
			}
			return r.fail(session, fmt.Errorf("session cancelled: %w", err))
		}

		session.Step = step
		session.Stats.Steps++
		metrics.StepsTotal.Inc()

		raw, err := r.decide(ctx, session, catalog)
		if err != nil {
			return r.fail(session, err)
		}

		action := ParseAction(raw)
		r.appendTurn(ctx, session, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   raw,
			Timestamp: time.Now(),
		})

		switch act := action.(type) {
		case domain.FinalAction:
			return r.complete(session, act.Content), nil
		case domain.TextAction:
			// Unstructured output ends the session like a final answer, so a
			// model that forgets the protocol still terminates the loop.
			return r.complete(session, act.Content), nil
		case domain.ToolCallAction:
			r.step(ctx, session, act)
		}
	}

	return r.stepLimit(session), nil
}

// decide calls the decision provider for the next action, retrying transport
// errors up to the configured count. Each attempt is traced.
func (r *Runtime) decide(ctx context.Context, session *domain.Session, catalog []domain.ToolDescriptor) (string, error) {
	view := windowTranscript(session.Transcript, r.config.MaxTranscriptBytes)
	req := domain.DecideRequest{Transcript: domain.CloneMessages(view), Catalog: catalog}

	var lastErr error
	for attempt := 0; attempt <= r.config.DecisionRetries; attempt++ {
		r.record(ctx, session, domain.TraceDecisionRequested, map[string]any{
			"provider":   r.provider.Name(),
			"attempt":    attempt,
			"transcript": len(view),
		})

		callCtx := ctx
		if r.config.StepTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.config.StepTimeout)
			defer cancel()
		}

		start := time.Now()
		raw, err := r.provider.Decide(callCtx, req)
		latency := time.Since(start)
		metrics.DecisionsTotal.Inc()
		metrics.DecisionLatency.Observe(latency.Seconds())
		session.Stats.ProviderLatencyMs += latency.Milliseconds()

		if err != nil {
			lastErr = err
			r.record(ctx, session, domain.TraceDecisionReceived, map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			})
			r.logger.Warn("decision request failed",
				"session", session.ID, "step", session.Step, "attempt", attempt, "err", err)
			continue
		}

		r.record(ctx, session, domain.TraceDecisionReceived, map[string]any{
			"attempt":       attempt,
			"content_bytes": len(raw),
			"latency_ms":    latency.Milliseconds(),
		})
		return raw, nil
	}

	return "", fmt.Errorf("decision provider failed after %d attempts: %w", r.config.DecisionRetries+1, lastErr)
}

// step handles one requested tool call: resolve, validate, gate, execute.
// Every outcome feeds an observation back into the transcript; none of them
// terminates the session.
func (r *Runtime) step(ctx context.Context, session *domain.Session, call domain.ToolCallAction) {
	session.Stats.ToolCalls++

	t, err := r.tools.Resolve(call.Tool)
	if err != nil {
		// Unknown tools never reach the gate or an executor.
		r.record(ctx, session, domain.TraceToolFailed, map[string]any{
			"tool":  call.Tool,
			"error": "unknown_tool",
		})
		r.observe(ctx, session, call.Tool, fmt.Sprintf("unknown_tool: %s", err), true)
		return
	}

	args, err := r.tools.Validate(t, call.Args)
	if err != nil {
		// Schema violations are a protocol matter, not a policy one: the
		// model sees the error and can self-correct on the next step.
		detail := err.Error()
		var se *tool.SchemaError
		if errors.As(err, &se) {
			detail = se.Detail
		}
		r.record(ctx, session, domain.TraceToolFailed, map[string]any{
			"tool":   call.Tool,
			"error":  "schema_error",
			"detail": detail,
		})
		r.observe(ctx, session, call.Tool, err.Error(), true)
		return
	}

	decision := r.gate.Authorize(t, args, session)
	r.record(ctx, session, domain.TracePolicyChecked, map[string]any{
		"tool":    call.Tool,
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
	})
	if !decision.Allowed {
		session.Stats.PolicyDenials++
		metrics.PolicyDenials.Inc()
		r.logger.Info("tool call denied",
			"session", session.ID, "step", session.Step, "tool", call.Tool, "reason", decision.Reason)
		r.observe(ctx, session, call.Tool,
			fmt.Sprintf("tool %q denied by policy: %s", call.Tool, decision.Reason), true)
		return
	}

	output, execErr := r.execute(ctx, t, args)
	if execErr != nil {
		// A failing tool must not crash the session.
		session.Stats.ToolErrors++
		metrics.ToolErrors.Inc()
		r.record(ctx, session, domain.TraceToolFailed, map[string]any{
			"tool":   call.Tool,
			"error":  "executor_error",
			"detail": execErr.Error(),
		})
		r.observe(ctx, session, call.Tool, fmt.Sprintf("tool %q failed: %s", call.Tool, execErr), true)
		return
	}

	truncated := output
	if r.config.MaxObservationBytes > 0 && len(output) > r.config.MaxObservationBytes {
		truncated = output[:r.config.MaxObservationBytes]
	}
	metrics.ToolExecutions.Inc()
	r.record(ctx, session, domain.TraceToolExecuted, map[string]any{
		"tool":            call.Tool,
		"output_bytes":    len(output),
		"truncated_bytes": len(truncated),
	})
	r.observe(ctx, session, call.Tool, truncated, false)
}

// execute runs one authorized tool call under the step deadline.
func (r *Runtime) execute(ctx context.Context, t domain.Tool, args map[string]any) (string, error) {
	if r.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.StepTimeout)
		defer cancel()
	}
	start := time.Now()
	output, err := t.Execute(ctx, args)
	metrics.ToolLatency.Observe(time.Since(start).Seconds())
	return output, err
}

// observe appends a tool observation to the transcript.
func (r *Runtime) observe(ctx context.Context, session *domain.Session, toolName, content string, isErr bool) {
	r.appendTurn(ctx, session, domain.Message{
		Role:      domain.RoleObservation,
		Content:   content,
		ToolName:  toolName,
		IsError:   isErr,
		Timestamp: time.Now(),
	})
}

// appendTurn appends to the transcript and persists the turn to memory.
func (r *Runtime) appendTurn(ctx context.Context, session *domain.Session, msg domain.Message) {
	session.Transcript = append(session.Transcript, msg)
	r.persistTurn(ctx, session.ID, msg)
}

// persistTurn writes one turn to the memory store, best effort.
func (r *Runtime) persistTurn(ctx context.Context, sessionID string, msg domain.Message) {
	if r.memory == nil {
		return
	}
	if err := r.memory.AppendTurn(ctx, sessionID, msg); err != nil {
		r.logger.Warn("failed to persist turn", "session", sessionID, "err", err)
	}
}

func (r *Runtime) record(ctx context.Context, session *domain.Session, kind domain.TraceKind, payload map[string]any) {
	r.trace.Record(ctx, domain.TraceEvent{
		SessionID: session.ID,
		Step:      session.Step,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (r *Runtime) complete(session *domain.Session, answer string) *domain.Session {
	session.Status = domain.StatusCompleted
	session.Answer = answer
	session.EndedAt = time.Now()
	r.record(context.Background(), session, domain.TraceFinalReturned, map[string]any{
		"answer_bytes": len(answer),
	})
	r.logger.Info("session completed",
		"session", session.ID, "steps", session.Stats.Steps, "tool_calls", session.Stats.ToolCalls)
	return session
}

// stepLimit terminates a session that exhausted its step budget with a
// best-effort answer: the most recent assistant content, or a fixed marker.
func (r *Runtime) stepLimit(session *domain.Session) *domain.Session {
	session.Status = domain.StatusStepLimitReached
	session.Answer = lastAssistantContent(session.Transcript)
	if session.Answer == "" {
		session.Answer = stepLimitAnswer
	}
	session.EndedAt = time.Now()
	metrics.StepLimitSessions.Inc()
	r.record(context.Background(), session, domain.TraceStepLimitHit, map[string]any{
		"max_steps": session.Config.MaxSteps,
	})
	r.logger.Warn("session hit step limit", "session", session.ID, "max_steps", session.Config.MaxSteps)
	return session
}

func (r *Runtime) fail(session *domain.Session, err error) (*domain.Session, error) {
	session.Status = domain.StatusFailed
	session.Error = err.Error()
	session.EndedAt = time.Now()
	r.logger.Error("session failed", "session", session.ID, "step", session.Step, "err", err)
	return session, err
}

func lastAssistantContent(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
