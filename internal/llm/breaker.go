package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient wraps a Client with a circuit breaker so a failing upstream
// provider sheds load fast instead of tying up mission deadlines.
//
// Streaming requests trip the breaker only on call setup; errors that arrive
// mid-stream are passed through to the consumer untouched.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// BreakerConfig tunes the circuit breaker around an LLM client.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Timeout before an open breaker moves to half-open.
	Timeout time.Duration
	// MinRequests before the failure ratio is considered.
	MinRequests uint32
	// FailureThreshold is the failure ratio that opens the breaker.
	FailureThreshold float64
}

// DefaultBreakerConfig returns settings suited to an LLM upstream: trip after
// a sustained failure rate and probe again after 30 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.6,
	}
}

// NewBreakerClient wraps inner with a circuit breaker.
func NewBreakerClient(inner Client, cfg BreakerConfig) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("llm circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Chat sends the request through the breaker.
func (b *BreakerClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*ChatResponse), nil
}

// ChatStream opens the stream through the breaker.
func (b *BreakerClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.ChatStream(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(<-chan StreamEvent), nil
}

// State returns the breaker's current state.
func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}
