package strategy

import (
	"time"

	"agentsched/internal/task"
)

// PriorityConfig tunes the fallback strategy.
type PriorityConfig struct {
	// Threshold is the minimum priority for eligibility.
	Threshold int
	// MinPendingAge keeps freshly created tasks from firing on the very
	// next poll tick.
	MinPendingAge time.Duration
}

// PriorityBased is the catch-all for tasks with no fixed time: anything
// that is neither Explicit nor Interval. A task becomes due once its
// priority crosses the threshold and it has been pending long enough.
type PriorityBased struct {
	cfg PriorityConfig
}

func NewPriorityBased(cfg PriorityConfig) PriorityBased {
	return PriorityBased{cfg: cfg}
}

func (PriorityBased) Name() string { return "priority" }

func (PriorityBased) Applies(t *task.Task) bool {
	return t.ScheduleType != task.ScheduleExplicit && t.ScheduleType != task.ScheduleInterval
}

func (s PriorityBased) IsDue(t *task.Task, now time.Time) bool {
	if t.Status != task.StatusPending {
		return false
	}
	if t.Priority < s.cfg.Threshold {
		return false
	}
	return now.Sub(t.CreatedAt) >= s.cfg.MinPendingAge
}

func (s PriorityBased) NextRunTime(t *task.Task, now time.Time) (time.Time, bool) {
	if t.Status != task.StatusPending || t.Priority < s.cfg.Threshold {
		return time.Time{}, false
	}
	eligible := t.CreatedAt.Add(s.cfg.MinPendingAge)
	if eligible.After(now) {
		return eligible, true
	}
	return now, true
}
