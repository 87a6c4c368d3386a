package strategy

import (
	"time"

	"agentsched/internal/task"
)

// Interval governs recurring tasks. A never-run task seeds from its
// ScheduledTime when set, otherwise from its creation time.
type Interval struct{}

func (Interval) Name() string { return "interval" }

func (Interval) Applies(t *task.Task) bool {
	return t.ScheduleType == task.ScheduleInterval
}

func (s Interval) IsDue(t *task.Task, now time.Time) bool {
	if t.Status != task.StatusPending {
		return false
	}
	if t.Interval == nil || t.Interval.Every <= 0 {
		return false
	}
	if exhausted(t, now) {
		return false
	}
	next, ok := s.NextRunTime(t, now)
	return ok && !next.After(now)
}

// NextRunTime is lastExecutedAt + period once the task has run, else the
// seed instant itself.
func (s Interval) NextRunTime(t *task.Task, now time.Time) (time.Time, bool) {
	if t.Interval == nil || t.Interval.Every <= 0 {
		return time.Time{}, false
	}
	if t.Status == task.StatusCancelled || t.Status == task.StatusFailed {
		return time.Time{}, false
	}
	if exhausted(t, now) {
		return time.Time{}, false
	}
	if !t.LastExecutedAt.IsZero() {
		return t.LastExecutedAt.Add(t.Interval.Every), true
	}
	if !t.ScheduledTime.IsZero() {
		return t.ScheduledTime, true
	}
	return t.CreatedAt, true
}

// exhausted reports whether execution or end bounds cut the task off.
func exhausted(t *task.Task, now time.Time) bool {
	if t.Interval.MaxExecutions > 0 && t.ExecutionCount >= t.Interval.MaxExecutions {
		return true
	}
	if !t.Interval.Until.IsZero() && now.After(t.Interval.Until) {
		return true
	}
	return false
}
