package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentsched/internal/task"
	"agentsched/internal/task/registry"
	"agentsched/internal/task/strategy"
	logx "agentsched/pkg/logx"
)

var now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T) (*Scheduler, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.WithClock(func() time.Time { return now.Add(-time.Hour) }))
	chain := strategy.NewChain(strategy.PriorityConfig{Threshold: 5})
	return New(reg, chain, logx.Nop()), reg
}

func create(t *testing.T, reg *registry.Registry, tk *task.Task) *task.Task {
	t.Helper()
	created, err := reg.Create(context.Background(), tk)
	require.NoError(t, err)
	return created
}

func TestDueTasksOrdering(t *testing.T) {
	s, reg := newScheduler(t)

	low := create(t, reg, &task.Task{
		Name: "low", Kind: "noop",
		ScheduleType:  task.ScheduleExplicit,
		ScheduledTime: now.Add(-2 * time.Hour),
	})
	high := create(t, reg, &task.Task{
		Name: "high", Kind: "noop", Priority: 9,
		ScheduleType:  task.ScheduleExplicit,
		ScheduledTime: now.Add(-time.Minute),
	})
	older := create(t, reg, &task.Task{
		Name: "older-same-priority", Kind: "noop", Priority: 9,
		ScheduleType:  task.ScheduleExplicit,
		ScheduledTime: now.Add(-3 * time.Hour),
	})

	due := s.DueTasks(now)
	require.Len(t, due, 3)
	// Priority descending, then earliest scheduled instant first.
	assert.Equal(t, older.ID, due[0].ID)
	assert.Equal(t, high.ID, due[1].ID)
	assert.Equal(t, low.ID, due[2].ID)
}

func TestDueTasksIdempotentWithoutExecution(t *testing.T) {
	s, reg := newScheduler(t)
	create(t, reg, &task.Task{
		Name: "a", Kind: "noop",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: now.Add(-time.Hour),
	})
	create(t, reg, &task.Task{
		Name: "b", Kind: "noop", Priority: 7,
		ScheduleType: task.SchedulePriority,
	})

	first := s.DueTasks(now)
	second := s.DueTasks(now)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestDueTasksExcludesRunning(t *testing.T) {
	s, reg := newScheduler(t)
	tk := create(t, reg, &task.Task{
		Name: "a", Kind: "noop",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: now.Add(-time.Hour),
	})

	require.Len(t, s.DueTasks(now), 1)
	_, err := reg.Transition(context.Background(), tk.ID, task.StatusPending, task.StatusRunning)
	require.NoError(t, err)
	assert.Empty(t, s.DueTasks(now))
}

func TestDueTasksGatesOnDependencies(t *testing.T) {
	s, reg := newScheduler(t)
	ctx := context.Background()

	dep := create(t, reg, &task.Task{
		Name: "dep", Kind: "noop",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: now.Add(-time.Hour),
	})
	create(t, reg, &task.Task{
		Name: "child", Kind: "noop",
		ScheduleType:  task.ScheduleExplicit,
		ScheduledTime: now.Add(-time.Hour),
		DependsOn:     []string{dep.ID},
	})

	due := s.DueTasks(now)
	require.Len(t, due, 1, "child is gated while dep is pending")
	assert.Equal(t, dep.ID, due[0].ID)

	_, err := reg.Transition(ctx, dep.ID, task.StatusPending, task.StatusRunning)
	require.NoError(t, err)
	_, err = reg.Transition(ctx, dep.ID, task.StatusRunning, task.StatusCompleted)
	require.NoError(t, err)

	due = s.DueTasks(now)
	require.Len(t, due, 1)
	assert.Equal(t, "child", due[0].Name)
}

func TestDueTasksNoDuplicates(t *testing.T) {
	s, reg := newScheduler(t)
	create(t, reg, &task.Task{
		Name: "a", Kind: "noop", Priority: 9,
		ScheduleType: task.SchedulePriority,
	})

	due := s.DueTasks(now)
	seen := map[string]int{}
	for _, tk := range due {
		seen[tk.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s present %d times", id, n)
	}
}

func TestNextRunTime(t *testing.T) {
	s, reg := newScheduler(t)
	tk := create(t, reg, &task.Task{
		Name: "iv", Kind: "noop",
		ScheduleType: task.ScheduleInterval,
		Interval:     &task.IntervalConfig{Every: 10 * time.Minute},
	})
	got, ok := s.NextRunTime(tk, now)
	require.True(t, ok)
	assert.Equal(t, tk.CreatedAt, got, "never-run interval tasks seed from creation")
}
