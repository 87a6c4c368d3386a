package strategy

import (
	"time"

	"agentsched/internal/task"
)

// ExplicitTime governs tasks that run once at a specific instant.
type ExplicitTime struct{}

func (ExplicitTime) Name() string { return "explicit" }

func (ExplicitTime) Applies(t *task.Task) bool {
	return t.ScheduleType == task.ScheduleExplicit
}

func (ExplicitTime) IsDue(t *task.Task, now time.Time) bool {
	if t.Status != task.StatusPending {
		return false
	}
	return !t.ScheduledTime.IsZero() && !t.ScheduledTime.After(now)
}

func (ExplicitTime) NextRunTime(t *task.Task, now time.Time) (time.Time, bool) {
	if t.Status.Terminal() || t.ScheduledTime.IsZero() {
		return time.Time{}, false
	}
	return t.ScheduledTime, true
}
