package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/szaher/missiongate/internal/loop"
	"github.com/szaher/missiongate/internal/sse"
	"github.com/szaher/missiongate/internal/telemetry"
)

// StreamController runs one mission per call under a hard deadline and
// translates engine progress into wire events. Exactly one terminal event
// (done or error) ends every stream unless the client disconnects first.
type StreamController struct {
	engine  *loop.Engine
	timeout time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewStreamController creates a controller with the given mission deadline.
func NewStreamController(engine *loop.Engine, timeout time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *StreamController {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamController{
		engine:  engine,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Run starts a mission and returns its event stream. The channel closes
// after the terminal event, or as soon as parent is canceled (client gone).
// The deadline starts at call time and covers the whole mission.
func (c *StreamController) Run(parent context.Context, prompt string) <-chan sse.Event {
	ch := make(chan sse.Event, 64)

	go func() {
		defer close(ch)

		ctx, cancel := context.WithTimeout(parent, c.timeout)
		defer cancel()

		if c.metrics != nil {
			c.metrics.ActiveMissions.Inc()
			defer c.metrics.ActiveMissions.Dec()
		}

		logger := telemetry.RequestLogger(parent, c.logger)

		// send drops the event and reports false once the client is gone,
		// so a disconnected consumer never wedges the mission goroutine.
		send := func(ev sse.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-parent.Done():
				return false
			}
		}

		start := time.Now()
		result, err := c.engine.Run(ctx, prompt, loop.Events{
			OnToken: func(text string) {
				send(sse.Event{Type: sse.EventToken, Content: text})
			},
			OnToolStart: func(name string) {
				send(sse.Event{Type: sse.EventToolStart, Content: name})
			},
			OnToolEnd: func(name, _ string) {
				send(sse.Event{Type: sse.EventToolEnd, Content: name})
			},
		})

		if c.metrics != nil && result != nil {
			for _, tc := range result.ToolCalls {
				c.metrics.ObserveToolCall(tc.ToolName, tc.Error != "")
			}
		}

		if parent.Err() != nil {
			// Client disconnected; nothing left to tell it.
			logger.Info("mission abandoned by client", slog.Duration("elapsed", time.Since(start)))
			c.observe("abandoned", start, result)
			return
		}

		switch {
		case err == nil:
			logger.Info("mission completed",
				slog.Int("steps", result.Steps),
				slog.Int("tool_calls", len(result.ToolCalls)),
				slog.Duration("elapsed", result.Duration))
			c.observe("done", start, result)
			send(sse.Event{Type: sse.EventDone, Content: ""})

		case errors.Is(err, loop.ErrStepLimit):
			logger.Warn("mission hit step limit", slog.Int("steps", result.Steps))
			c.observe("step_limit", start, result)
			send(sse.Event{
				Type:    sse.EventError,
				Content: "Agent exceeded maximum reasoning steps. Try a simpler prompt.",
			})

		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("mission timed out",
				slog.Duration("timeout", c.timeout),
				slog.Int("steps", result.Steps))
			c.observe("timeout", start, result)
			send(sse.Event{
				Type:    sse.EventError,
				Content: fmt.Sprintf("Request timed out after %d seconds.", timeoutSeconds(c.timeout)),
			})

		default:
			// Full detail stays server-side; the client gets a generic line.
			logger.Error("mission failed", slog.String("error", err.Error()))
			c.observe("error", start, result)
			send(sse.Event{
				Type:    sse.EventError,
				Content: "An internal error occurred.",
			})
		}
	}()

	return ch
}

// timeoutSeconds renders a deadline for the client-facing timeout message,
// rounding sub-second remainders up so it never reads "0 seconds".
func timeoutSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (c *StreamController) observe(status string, start time.Time, result *loop.Result) {
	if c.metrics == nil {
		return
	}
	var in, out int
	if result != nil {
		in = result.Tokens.InputTokens
		out = result.Tokens.OutputTokens
	}
	c.metrics.ObserveMission(status, time.Since(start), in, out)
}
