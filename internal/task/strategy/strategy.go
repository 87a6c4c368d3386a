// Package strategy holds the pluggable due-ness algorithms. Each strategy
// answers two questions for the scheduling style it owns: is this task due
// right now, and when should it next run.
package strategy

import (
	"time"

	"agentsched/internal/task"
)

// Strategy is one scheduling style's due/next-run logic.
type Strategy interface {
	// Name identifies the strategy in logs and snapshots.
	Name() string
	// Applies reports whether this strategy governs the task.
	Applies(t *task.Task) bool
	// IsDue reports whether the task should run at the given instant.
	// Only meaningful when Applies is true.
	IsDue(t *task.Task, now time.Time) bool
	// NextRunTime predicts the task's next eligible instant. ok is false
	// when no future run is expected.
	NextRunTime(t *task.Task, now time.Time) (time.Time, bool)
}

// Chain evaluates strategies in a fixed order; the first applicable one
// decides. Explicit and Interval take precedence over Priority, which is a
// fallback, not an override.
type Chain struct {
	strategies []Strategy
}

// NewChain builds the standard chain: ExplicitTime, Interval, PriorityBased.
func NewChain(cfg PriorityConfig) *Chain {
	return &Chain{strategies: []Strategy{
		ExplicitTime{},
		Interval{},
		NewPriorityBased(cfg),
	}}
}

// For returns the first strategy governing the task, or nil when none does.
func (c *Chain) For(t *task.Task) Strategy {
	for _, s := range c.strategies {
		if s.Applies(t) {
			return s
		}
	}
	return nil
}

// IsDue applies the chain: the first applicable strategy's verdict wins.
// A task no strategy claims is never due.
func (c *Chain) IsDue(t *task.Task, now time.Time) bool {
	s := c.For(t)
	return s != nil && s.IsDue(t, now)
}

// NextRunTime delegates to the governing strategy.
func (c *Chain) NextRunTime(t *task.Task, now time.Time) (time.Time, bool) {
	s := c.For(t)
	if s == nil {
		return time.Time{}, false
	}
	return s.NextRunTime(t, now)
}
