package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agentd/internal/agent"
	"agentd/internal/config"
	"agentd/internal/domain"
	"agentd/internal/memory"
	"agentd/internal/metrics"
	"agentd/internal/policy"
	"agentd/internal/provider"
	"agentd/internal/tool"
	"agentd/internal/trace"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = buildLogger("info", "text")

	root := &cobra.Command{
		Use:   "agentd",
		Short: "agentd: policy-gated tool-use agent runtime",
		Long:  "agentd runs a model-driven task loop where every tool call is schema-validated, policy-gated, and traced.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.agentd/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(traceCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLogger constructs the process logger: tinted text for humans, JSON for
// log pipelines.
func buildLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd %s\n", version)
		},
	}
}

func runCmd() *cobra.Command {
	var (
		maxSteps     int
		allowNetwork bool
		allowWrites  bool
		providerName string
		metricsAddr  string
		showTrace    bool
		follow       bool
	)

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run one task to completion and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")

			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
				cfg = config.Defaults()
			}
			logger = buildLogger(cfg.General.LogLevel, cfg.General.LogFormat)

			// Flag overrides apply to this invocation only.
			if cmd.Flags().Changed("max-steps") {
				cfg.General.MaxSteps = maxSteps
			}
			if cmd.Flags().Changed("allow-network") {
				cfg.Policy.AllowNetwork = allowNetwork
			}
			if cmd.Flags().Changed("allow-writes") {
				cfg.Policy.AllowWrites = allowWrites
			}
			if providerName != "" {
				cfg.Provider.Default = providerName
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Collector.Handler())
				go func() {
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						logger.Warn("metrics server stopped", "err", err)
					}
				}()
			}

			var followOut io.Writer
			if follow {
				followOut = os.Stderr
			}

			session, runtime, cleanup, err := buildRuntime(ctx, cfg, task, followOut)
			if cleanup != nil {
				defer cleanup()
			}
			if err != nil {
				return err
			}

			fmt.Println(session.Answer)
			logger.Info("session finished",
				"session", session.ID,
				"status", session.Status,
				"steps", session.Stats.Steps,
				"tool_calls", session.Stats.ToolCalls,
				"denials", session.Stats.PolicyDenials,
				"duration", session.EndedAt.Sub(session.StartedAt).Round(time.Millisecond),
			)

			if showTrace && runtime != nil {
				dumpSessionTrace(ctx, cfg, session.ID)
			}

			if session.Status == domain.StatusFailed {
				return fmt.Errorf("session failed: %s", session.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the step limit for this run")
	cmd.Flags().BoolVar(&allowNetwork, "allow-network", false, "allow network tools for this run")
	cmd.Flags().BoolVar(&allowWrites, "allow-writes", false, "allow workspace writes for this run")
	cmd.Flags().StringVar(&providerName, "provider", "", "decision backend to use (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "print the session trace after the run")
	cmd.Flags().BoolVar(&follow, "follow", false, "stream trace events to stderr as they happen")

	return cmd
}

// buildRuntime wires config into a runtime and executes the task. The
// returned cleanup closes stores and sinks and is non-nil once any opened.
// A non-nil followOut receives trace events as JSON lines while the task runs.
func buildRuntime(ctx context.Context, cfg *config.Config, task string, followOut io.Writer) (*domain.Session, *agent.Runtime, func(), error) {
	workspace := config.ExpandPath(cfg.General.Workspace)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Memory is optional: open failures degrade to a memory-less run.
	var memStore domain.MemoryStore
	if cfg.Memory.Enabled && cfg.Memory.DBPath != "" {
		store, err := memory.NewSQLiteStore(config.ExpandPath(cfg.Memory.DBPath), logger)
		if err != nil {
			logger.Warn("memory store unavailable, continuing without it", "err", err)
		} else {
			closers = append(closers, func() { store.Close() })
			if cfg.Memory.RetentionDays > 0 {
				retention := time.Duration(cfg.Memory.RetentionDays) * 24 * time.Hour
				if n, err := store.Prune(ctx, retention); err != nil {
					logger.Warn("memory prune failed", "err", err)
				} else if n > 0 {
					logger.Debug("pruned old turns", "count", n)
				}
			}
			memStore = store
		}
	}

	sink, err := buildTraceSink(cfg, followOut, &closers)
	if err != nil {
		return nil, nil, cleanup, err
	}

	snap := policy.Snapshot{
		AllowNetwork:   cfg.Policy.AllowNetwork,
		AllowedDomains: cfg.Policy.AllowedDomains,
		AllowWrites:    cfg.Policy.AllowWrites,
		WorkspaceRoot:  workspace,
		DenyTools:      cfg.Policy.DenyTools,
	}
	if cfg.Policy.RulesFile != "" {
		snap, err = policy.LoadRules(config.ExpandPath(cfg.Policy.RulesFile), snap)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("load policy rules: %w", err)
		}
	}

	registry, err := registerTools(cfg, workspace)
	if err != nil {
		return nil, nil, cleanup, err
	}

	factory := provider.NewFactory(cfg, logger)
	prov, err := factory.Default()
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("decision provider: %w", err)
	}

	runtime := agent.NewRuntime(agent.RuntimeConfig{
		Provider:          prov,
		Tools:             registry,
		Gate:              policy.NewGate(snap),
		Memory:            memStore,
		Trace:             sink,
		Logger:            logger,
		MemorySearchLimit: cfg.Memory.SearchLimit,
		Session: domain.SessionConfig{
			MaxSteps:            cfg.General.MaxSteps,
			StepTimeout:         cfg.General.StepTimeout(),
			SessionTimeout:      cfg.General.SessionTimeout(),
			MaxObservationBytes: cfg.General.MaxObservationBytes,
			MaxTranscriptBytes:  cfg.General.MaxTranscriptBytes,
			DecisionRetries:     cfg.General.DecisionRetries,
		},
	})

	session, err := runtime.Run(ctx, task)
	if err != nil {
		// The session is still terminal; the caller decides how to report.
		logger.Debug("run returned error", "err", err)
	}
	return session, runtime, cleanup, nil
}

// buildTraceSink assembles the configured sinks: sqlite for persistence,
// slog mirroring for debugging, and a live stream when followOut is set.
func buildTraceSink(cfg *config.Config, followOut io.Writer, closers *[]func()) (domain.TraceSink, error) {
	var sinks []domain.TraceSink
	if cfg.Trace.DBPath != "" {
		sqlSink, err := trace.NewSQLiteSink(config.ExpandPath(cfg.Trace.DBPath), logger)
		if err != nil {
			return nil, fmt.Errorf("trace sink: %w", err)
		}
		*closers = append(*closers, func() { sqlSink.Close() })
		sinks = append(sinks, sqlSink)
	}
	if cfg.Trace.LogSink {
		sinks = append(sinks, trace.NewSlogSink(logger))
	}
	if followOut != nil {
		stream := trace.NewStreamSink(0, logger)
		events := stream.Subscribe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				line, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintln(followOut, string(line))
			}
		}()
		*closers = append(*closers, func() {
			stream.Close()
			<-done
		})
		sinks = append(sinks, stream)
	}
	switch len(sinks) {
	case 0:
		return trace.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return trace.MultiSink(sinks), nil
	}
}

// registerTools creates and registers the builtin tools.
func registerTools(cfg *config.Config, workspace string) (*tool.Registry, error) {
	registry := tool.NewRegistry(logger)

	tools := []domain.Tool{
		tool.NewCalcTool(),
		tool.NewReadFileTool(workspace, cfg.Tools.File.MaxReadBytes),
		tool.NewWriteFileTool(workspace),
		tool.NewFetchTool(tool.FetchConfig{
			Timeout:  time.Duration(cfg.Tools.Fetch.TimeoutSeconds) * time.Second,
			MaxBytes: cfg.Tools.Fetch.MaxBodyBytes,
		}),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// dumpSessionTrace prints the persisted trace of one session as JSON lines.
func dumpSessionTrace(ctx context.Context, cfg *config.Config, sessionID string) {
	if cfg.Trace.DBPath == "" {
		logger.Warn("trace dump requested but no trace database is configured")
		return
	}
	sink, err := trace.NewSQLiteSink(config.ExpandPath(cfg.Trace.DBPath), logger)
	if err != nil {
		logger.Warn("cannot open trace database", "err", err)
		return
	}
	defer sink.Close()

	events, err := sink.SessionEvents(ctx, sessionID)
	if err != nil {
		logger.Warn("cannot read trace", "err", err)
		return
	}
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Println(string(line))
	}
}
