// Package metrics exposes runtime counters, gauges, and histograms in the
// Prometheus text exposition format without pulling in a client library.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewRegistry()

// renderable is one registered metric that can write itself in exposition
// format. Implementations must be safe for concurrent updates while writing.
type renderable interface {
	write(w io.Writer)
}

// Registry holds named metrics. Lookups are create-on-first-use, so the
// predefined metrics below and ad-hoc callers share the same instances.
type Registry struct {
	mu      sync.Mutex
	metrics map[string]renderable
	started time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]renderable),
		started: time.Now(),
	}
}

// Counter returns the counter registered under name, creating it if needed.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name].(*Counter); ok {
		return existing
	}
	c := &Counter{name: name, help: help}
	r.metrics[name] = c
	return c
}

// Gauge returns the gauge registered under name, creating it if needed.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name].(*Gauge); ok {
		return existing
	}
	g := &Gauge{name: name, help: help}
	r.metrics[name] = g
	return g
}

// Histogram returns the histogram registered under name, creating it with the
// given upper bounds if needed. Bounds are sorted; +Inf is implicit.
func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name].(*Histogram); ok {
		return existing
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{
		name:   name,
		help:   help,
		bounds: sorted,
		counts: make([]uint64, len(sorted)),
	}
	r.metrics[name] = h
	return h
}

// Handler serves the registry in Prometheus text format. Metrics are written
// in name order so the output is deterministic.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		r.mu.Lock()
		defer r.mu.Unlock()

		fmt.Fprintf(w, "# HELP agentd_uptime_seconds Time since process start in seconds\n")
		fmt.Fprintf(w, "# TYPE agentd_uptime_seconds gauge\n")
		fmt.Fprintf(w, "agentd_uptime_seconds %d\n", int64(time.Since(r.started).Seconds()))

		names := make([]string, 0, len(r.metrics))
		for name := range r.metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.metrics[name].write(w)
		}
	}
}

// Counter is a monotonically increasing value.
type Counter struct {
	name string
	help string
	v    atomic.Int64
}

func (c *Counter) Inc() { c.v.Add(1) }

func (c *Counter) Add(n int64) { c.v.Add(n) }

func (c *Counter) Value() int64 { return c.v.Load() }

func (c *Counter) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		c.name, c.help, c.name, c.name, c.Value())
}

// Gauge is a value that can move in both directions.
type Gauge struct {
	name string
	help string
	v    atomic.Int64
}

func (g *Gauge) Set(n int64) { g.v.Store(n) }

func (g *Gauge) Inc() { g.v.Add(1) }

func (g *Gauge) Dec() { g.v.Add(-1) }

func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) write(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n",
		g.name, g.help, g.name, g.name, g.Value())
}

// Histogram tracks a value distribution over fixed cumulative buckets.
type Histogram struct {
	name   string
	help   string
	mu     sync.Mutex
	bounds []float64
	counts []uint64
	count  uint64
	sum    float64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, bound := range h.bounds {
		if v <= bound {
			h.counts[i]++
		}
	}
}

func (h *Histogram) write(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for i, bound := range h.bounds {
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n",
			h.name, strconv.FormatFloat(bound, 'g', -1, 64), h.counts[i])
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(w, "%s_sum %s\n", h.name, strconv.FormatFloat(h.sum, 'g', -1, 64))
	fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
}

// --- Pre-defined metrics used across the application ---

var (
	SessionsTotal     = Collector.Counter("agentd_sessions_total", "Total sessions started")
	StepsTotal        = Collector.Counter("agentd_steps_total", "Total loop steps executed")
	DecisionsTotal    = Collector.Counter("agentd_decisions_total", "Total decision provider requests")
	ToolExecutions    = Collector.Counter("agentd_tool_executions_total", "Total tool executions")
	ToolErrors        = Collector.Counter("agentd_tool_errors_total", "Total failed tool executions")
	PolicyDenials     = Collector.Counter("agentd_policy_denials_total", "Total policy denials")
	StepLimitSessions = Collector.Counter("agentd_step_limit_sessions_total", "Sessions ended by the step limit")
	ActiveSessions    = Collector.Gauge("agentd_active_sessions", "Sessions currently running")

	DecisionLatency = Collector.Histogram("agentd_decision_latency_seconds", "Decision request latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
	ToolLatency = Collector.Histogram("agentd_tool_latency_seconds", "Tool execution latency in seconds",
		[]float64{0.1, 0.5, 1, 5, 10, 30})
)
