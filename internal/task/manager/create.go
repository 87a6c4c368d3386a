package manager

import (
	"context"
	"strings"
	"time"

	"agentsched/internal/task"
	"agentsched/internal/timeexpr"
	logx "agentsched/pkg/logx"
)

// Spec is a task creation request. When and Every accept the natural
// language grammar ("tomorrow", "in 2 hours", "every day", "5m"); concrete
// values already set on Task win over expressions.
type Spec struct {
	Task task.Task

	// When resolves Task.ScheduledTime. Phrases outside the fixed grammar
	// go to the oracle, if one is configured.
	When string

	// Every resolves the interval period. Recurring phrases ("every day")
	// are translated through their cron expression.
	Every string
}

// CreateTask registers a new task across all owners. Reserved for system
// and administrative tasks; multi-owner deployments create tasks through
// CreateTaskForAgent.
func (m *Manager) CreateTask(ctx context.Context, spec Spec) (*task.Task, error) {
	t := spec.Task
	if err := m.resolveSchedule(ctx, &t, spec); err != nil {
		return nil, err
	}
	created, err := m.reg.Create(ctx, &t)
	if err != nil {
		return nil, err
	}
	m.log.Info("task created",
		logx.String("task_id", created.ID),
		logx.String("kind", created.Kind),
		logx.String("schedule", string(created.ScheduleType)))
	return created, nil
}

// CreateTaskForAgent stamps the owner identity before registration. The
// stamp overrides any owner the caller smuggled into metadata: the scoped
// entry point is the authority on ownership.
func (m *Manager) CreateTaskForAgent(ctx context.Context, spec Spec, owner task.OwnerIdentity) (*task.Task, error) {
	if strings.TrimSpace(owner.ID) == "" {
		return nil, task.NewValidationError(task.CodeUnknownOwner, "owner id is required")
	}
	spec.Task.SetOwner(owner)
	return m.CreateTask(ctx, spec)
}

// resolveSchedule fills ScheduledTime and Interval from the When/Every
// expressions. It infers the schedule type when the caller left it blank.
func (m *Manager) resolveSchedule(ctx context.Context, t *task.Task, spec Spec) error {
	now := m.now()

	if spec.When != "" && t.ScheduledTime.IsZero() {
		at, err := m.resolveInstant(ctx, spec.When, now)
		if err != nil {
			return err
		}
		t.ScheduledTime = at
	}

	if spec.Every != "" && (t.Interval == nil || t.Interval.Every <= 0) {
		period, err := m.resolvePeriod(spec.Every, now)
		if err != nil {
			return err
		}
		iv := task.IntervalConfig{Every: period}
		if t.Interval != nil {
			iv.MaxExecutions = t.Interval.MaxExecutions
			iv.Until = t.Interval.Until
		}
		t.Interval = &iv
	}

	if t.ScheduleType == "" {
		switch {
		case t.Interval != nil:
			t.ScheduleType = task.ScheduleInterval
		case !t.ScheduledTime.IsZero():
			t.ScheduleType = task.ScheduleExplicit
		default:
			t.ScheduleType = task.SchedulePriority
		}
	}
	return nil
}

func (m *Manager) resolveInstant(ctx context.Context, expr string, now time.Time) (time.Time, error) {
	if at, ok := timeexpr.Parse(expr, now); ok {
		return at, nil
	}
	if m.oracle == nil {
		return time.Time{}, task.NewSchedulingError(task.CodeBadStrategyConfig,
			"unrecognized schedule expression: "+expr)
	}
	at, err := m.oracle.ResolveVague(ctx, expr, now)
	if err != nil {
		return time.Time{}, task.NewSchedulingError(task.CodeBadStrategyConfig,
			"schedule expression not resolvable: "+expr)
	}
	return at, nil
}

// resolvePeriod parses a duration expression, falling back to recurring
// phrases: "every day" goes through its cron expression, and the period is
// the gap between the next two occurrences.
func (m *Manager) resolvePeriod(expr string, now time.Time) (time.Duration, error) {
	if d, ok := timeexpr.ParseInterval(expr); ok {
		return d, nil
	}
	if cronExpr, ok := timeexpr.ToCronExpression(expr); ok {
		first, err := timeexpr.NextOccurrence(cronExpr, now)
		if err != nil {
			return 0, task.NewSchedulingError(task.CodeBadStrategyConfig,
				"recurring phrase produced a bad expression: "+expr)
		}
		second, err := timeexpr.NextOccurrence(cronExpr, first)
		if err != nil {
			return 0, task.NewSchedulingError(task.CodeBadStrategyConfig,
				"recurring phrase produced a bad expression: "+expr)
		}
		return second.Sub(first), nil
	}
	return 0, task.NewSchedulingError(task.CodeBadStrategyConfig,
		"unrecognized interval expression: "+expr)
}
