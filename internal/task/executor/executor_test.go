package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentsched/internal/task"
	"agentsched/internal/task/registry"
)

func fastRetry(attempts int) *task.RetryPolicy {
	return &task.RetryPolicy{MaxAttempts: attempts, BackoffBase: time.Millisecond, BackoffMultiplier: 1}
}

func setup(t *testing.T) (*registry.Registry, *HandlerMap) {
	t.Helper()
	return registry.New(), NewHandlerMap()
}

func mustCreate(t *testing.T, reg *registry.Registry, tk *task.Task) *task.Task {
	t.Helper()
	created, err := reg.Create(context.Background(), tk)
	require.NoError(t, err)
	return created
}

func TestExecuteSuccess(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("greet", func(ctx context.Context, tk task.Task) (any, error) {
		return "hello " + tk.Name, nil
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "world", Kind: "greet",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "hello world", results[0].Output)
	assert.Equal(t, 1, results[0].Attempt)

	got, err := reg.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.ExecutionCount)
	assert.False(t, got.LastExecutedAt.IsZero())
}

func TestRetryExhaustionYieldsOneResultPerAttempt(t *testing.T) {
	reg, handlers := setup(t)
	var calls atomic.Int32
	handlers.Register("flaky", func(ctx context.Context, tk task.Task) (any, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "always-fails", Kind: "flaky",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
		Retry: fastRetry(3),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 3)
	assert.EqualValues(t, 3, calls.Load())
	for i, rs := range results {
		assert.False(t, rs.Success)
		assert.Equal(t, i+1, rs.Attempt)
		require.NotNil(t, rs.Err)
		assert.Equal(t, task.CodeHandlerFailed, rs.Err.Code)
	}

	got, err := reg.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	reg, handlers := setup(t)
	var calls atomic.Int32
	handlers.Register("third-time", func(ctx context.Context, tk task.Task) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("not yet")
		}
		return "done", nil
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "eventually", Kind: "third-time",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
		Retry: fastRetry(5),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 3)
	assert.True(t, results[2].Success)

	got, _ := reg.Get(tk.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestUnresolvedHandler(t *testing.T) {
	reg, handlers := setup(t)
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "orphan", Kind: "nobody-home",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, task.CodeHandlerUnresolved, results[0].Err.Code)

	got, _ := reg.Get(tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("bomb", func(ctx context.Context, tk task.Task) (any, error) {
		panic("kaboom")
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "b", Kind: "bomb",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, task.CodeHandlerPanic, results[0].Err.Code)
}

func TestIntervalTaskCyclesBackToPending(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("tick", func(ctx context.Context, tk task.Task) (any, error) {
		return nil, nil
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "heartbeat", Kind: "tick",
		ScheduleType: task.ScheduleInterval,
		Interval:     &task.IntervalConfig{Every: time.Minute, MaxExecutions: 2},
	})

	e.ExecuteTasks(context.Background(), []*task.Task{tk})
	got, _ := reg.Get(tk.ID)
	assert.Equal(t, task.StatusPending, got.Status, "first run leaves room for one more")
	assert.Equal(t, 1, got.ExecutionCount)

	e.ExecuteTasks(context.Background(), []*task.Task{got})
	got, _ = reg.Get(tk.ID)
	assert.Equal(t, task.StatusCompleted, got.Status, "max executions reached")
	assert.Equal(t, 2, got.ExecutionCount)
}

func TestAlreadyRunningTaskIsSkipped(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("noop", func(ctx context.Context, tk task.Task) (any, error) {
		return nil, nil
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "claimed", Kind: "noop",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
	})
	_, err := reg.Transition(context.Background(), tk.ID, task.StatusPending, task.StatusRunning)
	require.NoError(t, err)

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	assert.Empty(t, results, "a running task must not be re-executed")
}

func TestNoDoubleExecutionAcrossOverlappingBatches(t *testing.T) {
	reg, handlers := setup(t)
	var calls atomic.Int32
	handlers.Register("slow", func(ctx context.Context, tk task.Task) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "once", Kind: "slow",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.ExecuteTasks(context.Background(), []*task.Task{tk})
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestConcurrencyCeiling(t *testing.T) {
	reg, handlers := setup(t)
	var inFlight, peak atomic.Int32
	handlers.Register("hold", func(ctx context.Context, tk task.Task) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	e := New(reg, handlers, Config{MaxConcurrency: 2})

	var batch []*task.Task
	for i := 0; i < 6; i++ {
		batch = append(batch, mustCreate(t, reg, &task.Task{
			Name: "h", Kind: "hold",
			ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
		}))
	}

	results := e.ExecuteTasks(context.Background(), batch)
	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCancelledMidRunStopsRetrying(t *testing.T) {
	reg, handlers := setup(t)
	var calls atomic.Int32
	handlers.Register("self-cancel", func(ctx context.Context, tk task.Task) (any, error) {
		calls.Add(1)
		_, _ = reg.Cancel(context.Background(), tk.ID)
		return nil, errors.New("boom")
	})
	e := New(reg, handlers, Config{})

	tk := mustCreate(t, reg, &task.Task{
		Name: "doomed", Kind: "self-cancel",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
		Retry: fastRetry(3),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 1, "no retry once the task left Running")
	assert.EqualValues(t, 1, calls.Load())

	got, err := reg.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status, "the cancellation wins")
	assert.Equal(t, 0, got.ExecutionCount, "abandoned runs are not settled")
}

func TestPerTaskTimeout(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("sleepy", func(ctx context.Context, tk task.Task) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	})
	e := New(reg, handlers, Config{DefaultTimeout: 10 * time.Millisecond})

	tk := mustCreate(t, reg, &task.Task{
		Name: "s", Kind: "sleepy",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, task.CodeHandlerTimeout, results[0].Err.Code)
}

func TestTaskTimeoutOverridesDefault(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("sleepy", func(ctx context.Context, tk task.Task) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	})
	e := New(reg, handlers, Config{DefaultTimeout: time.Minute})

	tk := mustCreate(t, reg, &task.Task{
		Name: "s", Kind: "sleepy",
		ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
		Timeout: 10 * time.Millisecond,
	})

	results := e.ExecuteTasks(context.Background(), []*task.Task{tk})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, task.CodeHandlerTimeout, results[0].Err.Code)
	assert.Less(t, results[0].Duration(), time.Second, "the task's own bound applies, not the default")
}

func TestHistoryIsBounded(t *testing.T) {
	reg, handlers := setup(t)
	handlers.Register("noop", func(ctx context.Context, tk task.Task) (any, error) {
		return nil, nil
	})
	e := New(reg, handlers, Config{HistorySize: 3})

	for i := 0; i < 5; i++ {
		tk := mustCreate(t, reg, &task.Task{
			Name: "n", Kind: "noop",
			ScheduleType: task.ScheduleExplicit, ScheduledTime: time.Now(),
		})
		e.ExecuteTasks(context.Background(), []*task.Task{tk})
	}
	assert.Len(t, e.History(), 3)
}
