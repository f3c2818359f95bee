package llm

import (
	"fmt"
	"sync"
)

// TokenTracker accumulates token usage across a mission's model calls and
// enforces an optional total budget. A budget of zero or less disables
// enforcement.
type TokenTracker struct {
	mu         sync.Mutex
	budget     int
	in         int
	out        int
	cacheRead  int
	cacheWrite int
}

// NewTokenTracker creates a tracker with the given budget.
func NewTokenTracker(budget int) *TokenTracker {
	return &TokenTracker{budget: budget}
}

// Add records the usage of one model call.
func (t *TokenTracker) Add(usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in += usage.InputTokens
	t.out += usage.OutputTokens
	t.cacheRead += usage.CacheRead
	t.cacheWrite += usage.CacheWrite
}

// CheckBudget returns an error if spending additional tokens would overrun
// the budget. Called before each model turn with the turn's max_tokens.
func (t *TokenTracker) CheckBudget(additional int) error {
	if t.budget <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	used := t.in + t.out
	if used+additional > t.budget {
		return fmt.Errorf("token budget exceeded: %d used + %d requested > %d budget",
			used, additional, t.budget)
	}
	return nil
}

// Usage returns the cumulative usage so far.
func (t *TokenTracker) Usage() TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TokenUsage{
		InputTokens:  t.in,
		OutputTokens: t.out,
		CacheRead:    t.cacheRead,
		CacheWrite:   t.cacheWrite,
	}
}

// Remaining returns the tokens left in the budget, clamped at zero, or -1
// when the budget is unlimited.
func (t *TokenTracker) Remaining() int {
	if t.budget <= 0 {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rem := t.budget - t.in - t.out; rem > 0 {
		return rem
	}
	return 0
}
