package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentsched/internal/storage"
	"agentsched/internal/task"
	logx "agentsched/pkg/logx"
)

func explicitTask(name string, at time.Time) *task.Task {
	return &task.Task{
		Name:          name,
		Kind:          "noop",
		ScheduleType:  task.ScheduleExplicit,
		ScheduledTime: at,
	}
}

func TestCreateStampsFields(t *testing.T) {
	r := New()
	created, err := r.Create(context.Background(), explicitTask("t1", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, task.StatusPending, created.Status)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestCreateValidation(t *testing.T) {
	r := New()
	ctx := context.Background()

	tests := []struct {
		name string
		in   *task.Task
		code string
	}{
		{"nil task", nil, task.CodeInvalidTask},
		{"missing name", &task.Task{Kind: "noop", ScheduleType: task.SchedulePriority}, task.CodeInvalidTask},
		{"missing kind", &task.Task{Name: "x", ScheduleType: task.SchedulePriority}, task.CodeInvalidTask},
		{"bad schedule type", &task.Task{Name: "x", Kind: "noop", ScheduleType: "cron"}, task.CodeInvalidTask},
		{"explicit without time", &task.Task{Name: "x", Kind: "noop", ScheduleType: task.ScheduleExplicit}, task.CodeInvalidTask},
		{"interval without period", &task.Task{Name: "x", Kind: "noop", ScheduleType: task.ScheduleInterval}, task.CodeInvalidTask},
		{
			"self dependency",
			&task.Task{ID: "self", Name: "x", Kind: "noop", ScheduleType: task.SchedulePriority, DependsOn: []string{"self"}},
			task.CodeCyclicDependency,
		},
		{
			"unknown dependency",
			&task.Task{Name: "x", Kind: "noop", ScheduleType: task.SchedulePriority, DependsOn: []string{"ghost"}},
			task.CodeInvalidTask,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, task.IsValidation(err, tt.code), "got %v", err)
		})
	}
	assert.Equal(t, 0, r.Len(), "failed creates must not be partially applied")
}

func TestUpdateRejectsDependencyCycle(t *testing.T) {
	r := New()
	ctx := context.Background()

	a, err := r.Create(ctx, &task.Task{Name: "a", Kind: "noop", ScheduleType: task.SchedulePriority})
	require.NoError(t, err)
	b, err := r.Create(ctx, &task.Task{Name: "b", Kind: "noop", ScheduleType: task.SchedulePriority, DependsOn: []string{a.ID}})
	require.NoError(t, err)

	// a -> b while b -> a closes the loop.
	a.DependsOn = []string{b.ID}
	_, err = r.Update(ctx, a)
	require.Error(t, err)
	assert.True(t, task.IsValidation(err, task.CodeCyclicDependency), "got %v", err)
}

func TestUpdatePreservesOwnerIdentity(t *testing.T) {
	r := New()
	ctx := context.Background()

	in := &task.Task{Name: "t", Kind: "noop", ScheduleType: task.SchedulePriority}
	in.SetOwner(task.OwnerIdentity{Namespace: "prod", Type: "agent", ID: "a-1"})
	created, err := r.Create(ctx, in)
	require.NoError(t, err)

	created.SetOwner(task.OwnerIdentity{Namespace: "prod", Type: "agent", ID: "a-2"})
	_, err = r.Update(ctx, created)
	require.Error(t, err)
	assert.True(t, task.IsValidation(err, task.CodeImmutableField), "got %v", err)

	// Dropping the owner entirely is just as illegal.
	stripped, err := r.Get(created.ID)
	require.NoError(t, err)
	delete(stripped.Metadata, task.MetaOwnerIdentity)
	_, err = r.Update(ctx, stripped)
	assert.True(t, task.IsValidation(err, task.CodeImmutableField), "got %v", err)
}

func TestUpdatePreservesBookkeeping(t *testing.T) {
	r := New()
	ctx := context.Background()

	created, err := r.Create(ctx, explicitTask("t", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, r.RecordExecution(ctx, created.ID, time.Now()))

	created.Name = "renamed"
	updated, err := r.Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 1, updated.ExecutionCount)
	assert.False(t, updated.LastExecutedAt.IsZero())
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestTransition(t *testing.T) {
	r := New()
	ctx := context.Background()

	created, err := r.Create(ctx, explicitTask("t", time.Now()))
	require.NoError(t, err)

	running, err := r.Transition(ctx, created.ID, task.StatusPending, task.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, running.Status)

	// Second claim of the same task is a stale transition.
	_, err = r.Transition(ctx, created.ID, task.StatusPending, task.StatusRunning)
	require.Error(t, err)
	assert.True(t, task.IsConcurrency(err))

	// Illegal edge inside the graph.
	_, err = r.Transition(ctx, created.ID, task.StatusRunning, task.StatusPending)
	require.Error(t, err)
	assert.True(t, task.IsValidation(err, task.CodeInvalidTask))

	done, err := r.Transition(ctx, created.ID, task.StatusRunning, task.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status)
}

func TestCancel(t *testing.T) {
	r := New()
	ctx := context.Background()

	created, err := r.Create(ctx, explicitTask("t", time.Now()))
	require.NoError(t, err)

	got, err := r.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status)

	_, err = r.Cancel(ctx, created.ID)
	assert.True(t, task.IsConcurrency(err), "cancelling a terminal task: got %v", err)
}

func TestFindIsolationByOwner(t *testing.T) {
	r := New()
	ctx := context.Background()

	mk := func(owner string) {
		in := &task.Task{Name: "t-" + owner, Kind: "noop", ScheduleType: task.SchedulePriority}
		in.SetOwner(task.OwnerIdentity{Namespace: "prod", Type: "agent", ID: owner})
		_, err := r.Create(ctx, in)
		require.NoError(t, err)
	}
	mk("a-1")
	mk("a-1")
	mk("a-2")

	all := r.Find(task.Filter{})
	require.Len(t, all, 3)

	scoped := r.Find(task.Filter{}.ForOwner(task.OwnerIdentity{ID: "a-1"}))
	require.Len(t, scoped, 2)
	for _, got := range scoped {
		owner, ok := got.Owner()
		require.True(t, ok)
		assert.Equal(t, "a-1", owner.ID)
	}
}

func TestFindReturnsCreationOrder(t *testing.T) {
	r := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := r.Create(ctx, explicitTask("t", time.Now().Add(time.Hour)))
		require.NoError(t, err)
	}
	got := r.Find(task.Filter{})
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].ID, got[i].ID)
	}
}

func TestWriteThroughAndLoadFrom(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sched.db")

	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	r := New(WithStore(st))
	created, err := r.Create(ctx, explicitTask("durable", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	_, err = r.Transition(ctx, created.ID, task.StatusPending, task.StatusRunning)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st2, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()

	r2 := New()
	n, err := r2.LoadFrom(ctx, st2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	restored, err := r2.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", restored.Name)
	// A run interrupted by restart goes back to Pending.
	assert.Equal(t, task.StatusPending, restored.Status)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	ctx := context.Background()
	created, err := r.Create(ctx, explicitTask("t", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", again.Name)
}
