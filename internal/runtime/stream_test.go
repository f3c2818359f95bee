package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/szaher/missiongate/internal/llm"
	"github.com/szaher/missiongate/internal/loop"
	"github.com/szaher/missiongate/internal/sse"
	"github.com/szaher/missiongate/internal/telemetry"
	"github.com/szaher/missiongate/internal/tools"
)

type namedExecutor struct{ reply string }

func (e namedExecutor) Execute(context.Context, map[string]interface{}) (string, error) {
	return e.reply, nil
}

func newStreamEngineWithClient(t *testing.T, client llm.Client) *loop.Engine {
	t.Helper()
	r := tools.NewRegistry()
	r.Register(llm.ToolDefinition{
		Name:        "fetch_page",
		Description: "fetch",
		InputSchema: map[string]interface{}{"type": "object"},
	}, namedExecutor{reply: "<html>ok</html>"})
	return loop.NewEngine(client, r, loop.Config{Model: "m", MaxSteps: 5})
}

func newStreamEngine(t *testing.T, responses ...llm.MockResponse) *loop.Engine {
	return newStreamEngineWithClient(t, llm.NewMockClient(responses...))
}

func collect(t *testing.T, ch <-chan sse.Event) []sse.Event {
	t.Helper()
	var events []sse.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out collecting events")
		}
	}
}

func TestStreamControllerRun_TokensThenDone(t *testing.T) {
	engine := newStreamEngine(t, llm.MockResponse{Content: "answer", StopReason: llm.StopEndTurn})
	ctrl := NewStreamController(engine, time.Minute, nil, telemetry.NewMetrics())

	events := collect(t, ctrl.Run(context.Background(), "question"))
	if len(events) != 2 {
		t.Fatalf("events = %+v, want token then done", events)
	}
	if events[0].Type != sse.EventToken || events[0].Content != "answer" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != sse.EventDone || events[1].Content != "" {
		t.Errorf("terminal event = %+v", events[1])
	}
}

func TestStreamControllerRun_ToolEvents(t *testing.T) {
	engine := newStreamEngine(t,
		llm.MockResponse{
			ToolCalls:  []llm.ToolCall{{ID: "c1", Name: "fetch_page", Input: map[string]interface{}{}}},
			StopReason: llm.StopToolUse,
		},
		llm.MockResponse{Content: "summary", StopReason: llm.StopEndTurn},
	)
	ctrl := NewStreamController(engine, time.Minute, nil, nil)

	events := collect(t, ctrl.Run(context.Background(), "fetch something"))

	want := []sse.Event{
		{Type: sse.EventToolStart, Content: "fetch_page"},
		{Type: sse.EventToolEnd, Content: "fetch_page"},
		{Type: sse.EventToken, Content: "summary"},
		{Type: sse.EventDone, Content: ""},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestStreamControllerRun_StepLimit(t *testing.T) {
	engine := newStreamEngine(t, llm.MockResponse{
		ToolCalls:  []llm.ToolCall{{ID: "c", Name: "fetch_page", Input: map[string]interface{}{}}},
		StopReason: llm.StopToolUse,
	})
	ctrl := NewStreamController(engine, time.Minute, nil, nil)

	events := collect(t, ctrl.Run(context.Background(), "loop"))
	last := events[len(events)-1]
	if last.Type != sse.EventError {
		t.Fatalf("terminal event = %+v, want error", last)
	}
	if last.Content != "Agent exceeded maximum reasoning steps. Try a simpler prompt." {
		t.Errorf("error content = %q", last.Content)
	}
}

func TestStreamControllerRun_Timeout(t *testing.T) {
	engine := newStreamEngine(t, llm.MockResponse{
		Content:    "too slow",
		StopReason: llm.StopEndTurn,
		Delay:      10 * time.Second,
	})
	ctrl := NewStreamController(engine, 30*time.Millisecond, nil, nil)

	start := time.Now()
	events := collect(t, ctrl.Run(context.Background(), "slow mission"))
	if time.Since(start) > 5*time.Second {
		t.Fatal("controller did not honor the deadline")
	}

	if len(events) != 1 {
		t.Fatalf("events = %+v, want single error", events)
	}
	// 30ms rounds up: the client-facing message never says "0 seconds".
	if events[0].Type != sse.EventError || events[0].Content != "Request timed out after 1 seconds." {
		t.Errorf("terminal event = %+v", events[0])
	}
}

func TestTimeoutSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{30 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{300 * time.Second, 300},
	}
	for _, tc := range tests {
		if got := timeoutSeconds(tc.in); got != tc.want {
			t.Errorf("timeoutSeconds(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStreamControllerRun_InternalErrorIsGeneric(t *testing.T) {
	r := tools.NewRegistry()
	engine := loop.NewEngine(llm.NewMockClient(), r, loop.Config{Model: "m", MaxSteps: 5})
	ctrl := NewStreamController(engine, time.Minute, nil, nil)

	events := collect(t, ctrl.Run(context.Background(), "anything"))
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != sse.EventError || events[0].Content != "An internal error occurred." {
		t.Errorf("terminal event = %+v, want generic internal error", events[0])
	}
}

func TestStreamControllerRun_ClientDisconnect(t *testing.T) {
	engine := newStreamEngine(t, llm.MockResponse{
		Content:    "never delivered",
		StopReason: llm.StopEndTurn,
		Delay:      50 * time.Millisecond,
	})
	ctrl := NewStreamController(engine, time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := ctrl.Run(ctx, "mission")
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed without wedging
			}
		case <-deadline:
			t.Fatal("channel not closed after client disconnect")
		}
	}
}
