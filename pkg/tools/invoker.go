package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

var (
	toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_tool_executions_total",
			Help: "Total tool executions",
		},
		[]string{"tool_name", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool_name"},
	)
)

func init() {
	prometheus.MustRegister(toolExecutions, toolDuration)
}

// Invoke executes the given function_call items concurrently against the
// registry and returns one function_call_output record per call, in the
// input order. Failures are isolated per call: a missing tool, malformed
// arguments, an executor error, or a panic degrade to an error string in
// that call's output record and never affect sibling calls.
func Invoke(ctx context.Context, calls []api.Item, reg *Registry, log *slog.Logger) []api.Item {
	if len(calls) == 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}

	results := make([]api.Item, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call api.Item) {
			defer wg.Done()
			results[i] = api.NewFunctionCallOutput(call.CallID, executeOne(ctx, call, reg, log))
		}(i, call)
	}

	wg.Wait()
	return results
}

// executeOne runs a single call and returns its output string. It never
// panics: executor panics are recovered into an error string.
func executeOne(ctx context.Context, call api.Item, reg *Registry, log *slog.Logger) (output string) {
	fn, ok := reg.Lookup(call.Name)
	if !ok {
		log.Warn("tool not found", "tool", call.Name, "call_id", call.CallID)
		toolExecutions.WithLabelValues(call.Name, "not_found").Inc()
		return fmt.Sprintf("Tool not found: %s", call.Name)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			log.Warn("malformed tool arguments, invoking with empty args",
				"tool", call.Name, "call_id", call.CallID, "error", err)
			args = map[string]any{}
		}
	}

	start := time.Now()
	status := "success"
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("tool panicked", "tool", call.Name, "panic", rec)
			output = fmt.Sprintf("execution failed: %v", rec)
			status = "panic"
		}
		toolExecutions.WithLabelValues(call.Name, status).Inc()
		toolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}()

	out, err := fn(ctx, args)
	if err != nil {
		log.Warn("tool failed", "tool", call.Name, "call_id", call.CallID, "error", err)
		status = "error"
		return fmt.Sprintf("execution failed: %v", err)
	}
	return out
}
