// Package loop implements the reason-act-observe mission loop: the model
// streams a turn, requested tools run one at a time, and their observations
// feed the next turn until the model stops calling tools or the step limit
// is reached.
package loop

import (
	"context"
	"errors"
	"time"

	"github.com/szaher/missiongate/internal/llm"
)

// ErrStepLimit is returned when the loop exhausts its step budget before the
// model produces a final answer.
var ErrStepLimit = errors.New("step limit exceeded")

// ToolCallRecord is an audit record of a single tool invocation.
type ToolCallRecord struct {
	ID       string                 `json:"id"`
	ToolName string                 `json:"tool_name"`
	Input    map[string]interface{} `json:"input"`
	Output   string                 `json:"output"`
	Duration time.Duration          `json:"duration"`
	Error    string                 `json:"error,omitempty"`
}

// ToolExecutor dispatches tool calls during the loop and advertises the
// available tool definitions to the model.
type ToolExecutor interface {
	ExecuteToResult(ctx context.Context, call llm.ToolCall) llm.ToolResult
	Definitions() []llm.ToolDefinition
}

// Events receives progress callbacks while a mission runs. Any callback may
// be nil. Callbacks are invoked from the loop goroutine and must not block
// for long; a stalled callback stalls the mission.
type Events struct {
	// OnToken is called for each streamed text fragment.
	OnToken func(text string)
	// OnToolStart is called before a tool executes.
	OnToolStart func(name string)
	// OnToolEnd is called after a tool returns, with its observation.
	OnToolEnd func(name, result string)
}

// Config holds the per-engine mission parameters.
type Config struct {
	Model       string
	System      string
	MaxSteps    int
	MaxTokens   int
	Temperature *float64
	// TokenBudget caps cumulative token usage across the mission.
	// Zero means unlimited.
	TokenBudget int
}

// Result is the outcome of a completed mission.
type Result struct {
	Output    string           `json:"output"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Tokens    llm.TokenUsage   `json:"tokens"`
	Steps     int              `json:"steps"`
	Duration  time.Duration    `json:"duration"`
}

// Engine drives the mission loop against one LLM client and tool set.
// It is safe for concurrent use; each Run carries its own conversation state.
type Engine struct {
	client llm.Client
	tools  ToolExecutor
	cfg    Config
}

// NewEngine creates an Engine. MaxSteps and MaxTokens fall back to sane
// defaults when unset.
func NewEngine(client llm.Client, tools ToolExecutor, cfg Config) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 40
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Engine{client: client, tools: tools, cfg: cfg}
}

// Run executes one mission. Tool calls within a turn run sequentially so
// observations arrive in the order the model requested them. Returns
// ErrStepLimit when the step budget runs out with tools still pending.
func (e *Engine) Run(ctx context.Context, prompt string, events Events) (*Result, error) {
	start := time.Now()
	tracker := llm.NewTokenTracker(e.cfg.TokenBudget)

	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

	var records []ToolCallRecord
	var finalOutput string
	steps := 0

	result := func() *Result {
		return &Result{
			Output:    finalOutput,
			ToolCalls: records,
			Tokens:    tracker.Usage(),
			Steps:     steps,
			Duration:  time.Since(start),
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return result(), err
		}
		if steps >= e.cfg.MaxSteps {
			return result(), ErrStepLimit
		}
		steps++

		if err := tracker.CheckBudget(e.cfg.MaxTokens); err != nil {
			return result(), err
		}

		req := llm.ChatRequest{
			Model:       e.cfg.Model,
			Messages:    messages,
			System:      e.cfg.System,
			Tools:       e.tools.Definitions(),
			MaxTokens:   e.cfg.MaxTokens,
			Temperature: e.cfg.Temperature,
		}

		resp, err := e.streamTurn(ctx, req, events)
		if err != nil {
			return result(), err
		}
		tracker.Add(resp.Usage)

		if resp.Content != "" {
			finalOutput = resp.Content
		}

		if len(resp.ToolCalls) == 0 || resp.StopReason != llm.StopToolUse {
			return result(), nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return result(), err
			}

			if events.OnToolStart != nil {
				events.OnToolStart(tc.Name)
			}

			toolStart := time.Now()
			res := e.tools.ExecuteToResult(ctx, tc)

			// A context error surfaced by the tool aborts the
			// mission instead of becoming an observation.
			if res.IsError && ctx.Err() != nil {
				return result(), ctx.Err()
			}

			record := ToolCallRecord{
				ID:       tc.ID,
				ToolName: tc.Name,
				Input:    tc.Input,
				Output:   res.Content,
				Duration: time.Since(toolStart),
			}
			if res.IsError {
				record.Error = res.Content
			}
			records = append(records, record)

			if events.OnToolEnd != nil {
				events.OnToolEnd(tc.Name, res.Content)
			}

			toolRes := res
			messages = append(messages, llm.Message{
				Role:       llm.RoleUser,
				ToolResult: &toolRes,
			})
		}
	}
}

// streamTurn runs one model turn over the streaming API, forwarding text
// fragments to the OnToken callback as they arrive.
func (e *Engine) streamTurn(ctx context.Context, req llm.ChatRequest, events Events) (*llm.ChatResponse, error) {
	ch, err := e.client.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp *llm.ChatResponse
	for event := range ch {
		switch event.Type {
		case "text":
			if events.OnToken != nil {
				events.OnToken(event.Text)
			}
		case "done":
			resp = event.Response
		case "error":
			return nil, event.Error
		}
	}
	if resp == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("loop: stream ended without a response")
	}
	return resp, nil
}
