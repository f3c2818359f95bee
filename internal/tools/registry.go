// Package tools implements the scraping tool registry and executors for the
// mission gateway, including the SSRF guard every fetch-capable tool runs
// through before touching the network.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/szaher/missiongate/internal/llm"
)

// Executor executes a tool call and returns the result as a string.
// Failures inside a tool are reported as descriptive return strings, not
// errors: the agent observes the failure text and picks another action.
// Returning a non-nil error is reserved for infrastructure faults.
type Executor interface {
	Execute(ctx context.Context, input map[string]interface{}) (string, error)
}

// Registry manages tool executors and dispatches tool calls.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	tools     map[string]llm.ToolDefinition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		tools:     make(map[string]llm.ToolDefinition),
	}
}

// Register adds a tool executor to the registry.
func (r *Registry) Register(def llm.ToolDefinition, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[def.Name] = executor
	r.tools[def.Name] = def
}

// Execute dispatches a tool call to its registered executor.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	r.mu.RLock()
	executor, ok := r.executors[call.Name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tool %q not registered", call.Name)
	}

	return executor.Execute(ctx, call.Input)
}

// ExecuteToResult runs one tool call and folds any error into the result
// value, preserving the error-as-value contract at the agent boundary.
func (r *Registry) ExecuteToResult(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	output, err := r.Execute(ctx, call)
	if err != nil {
		return llm.ToolResult{ToolUseID: call.ID, Content: err.Error(), IsError: true}
	}
	return llm.ToolResult{ToolUseID: call.ID, Content: output}
}

// Definitions returns all registered tool definitions, sorted by name so the
// model sees a stable tool list across turns.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, d := range r.tools {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// --- input coercion helpers shared by executors ---

func stringArg(input map[string]interface{}, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func intArg(input map[string]interface{}, key string, fallback int) int {
	switch v := input[key].(type) {
	case float64: // JSON numbers decode as float64
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringSliceArg(input map[string]interface{}, key string) []string {
	raw, ok := input[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
