// Package executor runs batches of due tasks with a concurrency ceiling,
// per-task timeout, and retry-with-backoff, recording one ExecutionResult
// per attempt. It never mutates tasks directly: status transitions and
// execution bookkeeping go through the registry, whose Pending->Running
// transition is the guard against double execution.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"agentsched/internal/eventbus"
	"agentsched/internal/observability/metrics"
	"agentsched/internal/storage"
	"agentsched/internal/task"
	logx "agentsched/pkg/logx"
)

// Registry is the task-state surface the executor writes through.
type Registry interface {
	Get(id string) (*task.Task, error)
	Transition(ctx context.Context, id string, from, to task.Status) (*task.Task, error)
	RecordExecution(ctx context.Context, id string, at time.Time) error
}

// Config tunes the executor. Zero values fall back to defaults.
type Config struct {
	// MaxConcurrency caps simultaneously running tasks. Default 5.
	MaxConcurrency int
	// DefaultTimeout bounds a single attempt when the task carries no
	// timeout of its own. 0 means no bound.
	DefaultTimeout time.Duration
	// HistorySize bounds the in-memory result history. Default 200.
	HistorySize int
	// DispatchRatePerSec throttles task starts. 0 disables the limiter.
	DispatchRatePerSec float64
	// MaxBackoff caps a single retry delay. Default 15s.
	MaxBackoff time.Duration
}

type Executor struct {
	log      logx.Logger
	reg      Registry
	resolver Resolver
	bus      eventbus.Bus
	store    storage.Store
	met      *metrics.Metrics

	cfg     Config
	limiter *rate.Limiter

	rngMu sync.Mutex
	rng   *rand.Rand

	hmu     sync.Mutex
	history []task.ExecutionResult
}

type Option func(*Executor)

func WithLogger(log logx.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithBus publishes task lifecycle events (task.started, task.completed,
// task.failed, task.skipped) to the given bus.
func WithBus(bus eventbus.Bus) Option {
	return func(e *Executor) { e.bus = bus }
}

// WithStore appends every attempt's result to persistent storage,
// best effort.
func WithStore(st storage.Store) Option {
	return func(e *Executor) { e.store = st }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.met = m }
}

func New(reg Registry, resolver Resolver, cfg Config, opts ...Option) *Executor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Second
	}
	e := &Executor{
		log:      logx.Nop(),
		reg:      reg,
		resolver: resolver,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.DispatchRatePerSec > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRatePerSec), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	return e
}

// ExecuteTasks runs the batch and returns one result per attempt, in
// completion order. Tasks are claimed in the order given; a task another
// cycle already claimed is skipped silently. The call returns once every
// dispatched task has finished.
func (e *Executor) ExecuteTasks(ctx context.Context, tasks []*task.Task) []task.ExecutionResult {
	sem := make(chan struct{}, e.cfg.MaxConcurrency)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []task.ExecutionResult
	)

	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				break
			}
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		// Claiming the task is the mutual-exclusion point: a stale
		// transition means another cycle got here first.
		claimed, err := e.reg.Transition(ctx, t.ID, task.StatusPending, task.StatusRunning)
		if err != nil {
			<-sem
			if task.IsConcurrency(err) {
				e.countSkip(t)
				continue
			}
			e.log.Warn("task claim failed", logx.String("task_id", t.ID), logx.Err(err))
			continue
		}
		e.publish("task.started", claimed, nil)
		if e.met != nil {
			e.met.TasksStarted.Inc()
			e.met.InFlight.Inc()
		}

		wg.Add(1)
		go func(t *task.Task) {
			defer wg.Done()
			defer func() {
				<-sem
				if e.met != nil {
					e.met.InFlight.Dec()
				}
			}()
			rs := e.runOne(ctx, t)
			mu.Lock()
			results = append(results, rs...)
			mu.Unlock()
		}(claimed)
	}

	wg.Wait()
	return results
}

// runOne drives one task's attempt cycle and settles its final status.
func (e *Executor) runOne(ctx context.Context, t *task.Task) []task.ExecutionResult {
	handler, ok := e.resolver.Resolve(t.Kind)
	if !ok {
		err := task.NewExecutionError(task.CodeHandlerUnresolved,
			"no handler registered for kind "+t.Kind, nil)
		now := time.Now()
		rs := task.ExecutionResult{
			TaskID:     t.ID,
			StartedAt:  now,
			FinishedAt: now,
			Err:        task.NewErrorInfo(err),
			Attempt:    1,
		}
		e.record(ctx, rs)
		e.settle(ctx, t, false, err)
		return []task.ExecutionResult{rs}
	}

	maxAttempts := 1
	if t.Retry != nil && t.Retry.MaxAttempts > 1 {
		maxAttempts = t.Retry.MaxAttempts
	}

	var (
		results  []task.ExecutionResult
		finalErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rs := e.attempt(ctx, t, handler, attempt)
		results = append(results, rs)
		e.record(ctx, rs)
		if rs.Success {
			finalErr = nil
			break
		}
		finalErr = fmt.Errorf("%s", rs.Err.Message)

		if attempt >= maxAttempts {
			break
		}
		// Cancellation is observed here, at the attempt boundary: both
		// batch-context cancellation and a task Cancelled through the
		// registry while its attempt ran. The status check repeats after
		// the backoff sleep so a cancel landing mid-delay is seen too.
		if !e.stillRunning(t.ID) {
			e.log.Debug("retries abandoned, task no longer running", logx.String("task_id", t.ID))
			return results
		}
		delay := e.backoffDelay(t.Retry, attempt)
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			e.log.Debug("retry abandoned", logx.String("task_id", t.ID), logx.Err(ctx.Err()))
			e.settle(ctx, t, false, ctx.Err())
			return results
		case <-tmr.C:
		}
		if !e.stillRunning(t.ID) {
			e.log.Debug("retries abandoned, task no longer running", logx.String("task_id", t.ID))
			return results
		}
		e.log.Debug("task retry",
			logx.String("task_id", t.ID), logx.Int("attempt", attempt+1), logx.Duration("delay", delay))
	}

	e.settle(ctx, t, finalErr == nil, finalErr)
	return results
}

// stillRunning reports whether the task still holds its Running claim.
// A task cancelled mid-run drops out of Running and must not retry.
func (e *Executor) stillRunning(id string) bool {
	cur, err := e.reg.Get(id)
	return err == nil && cur.Status == task.StatusRunning
}

// attempt invokes the handler once with a panic guard and optional timeout.
func (e *Executor) attempt(ctx context.Context, t *task.Task, handler Handler, n int) task.ExecutionResult {
	timeout := e.cfg.DefaultTimeout
	if t.Timeout > 0 {
		timeout = t.Timeout
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	start := time.Now()
	var (
		output any
		err    error
	)
	// One bad handler must not take down a worker, let alone the process.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = task.NewExecutionError(task.CodeHandlerPanic,
					fmt.Sprintf("panic: %v", r), nil)
				e.log.Error("task.panic",
					logx.String("task_id", t.ID), logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		output, err = handler(runCtx, *t.Clone())
	}()
	if cancel != nil {
		cancel()
	}
	finish := time.Now()
	if e.met != nil {
		e.met.Attempts.Inc()
		e.met.RunDuration.Observe(finish.Sub(start).Seconds())
	}

	if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = task.NewExecutionError(task.CodeHandlerTimeout, "attempt timed out", err)
	}

	rs := task.ExecutionResult{
		TaskID:     t.ID,
		StartedAt:  start,
		FinishedAt: finish,
		Attempt:    n,
	}
	if err != nil {
		rs.Err = task.NewErrorInfo(err)
	} else {
		rs.Success = true
		rs.Output = output
	}
	return rs
}

// settle moves the task out of Running and updates execution bookkeeping.
// Concurrency errors here mean the task was cancelled mid-run; the
// cancellation wins and the result stands as recorded.
func (e *Executor) settle(ctx context.Context, t *task.Task, success bool, finalErr error) {
	now := time.Now()
	if err := e.reg.RecordExecution(ctx, t.ID, now); err != nil {
		e.log.Warn("execution bookkeeping failed", logx.String("task_id", t.ID), logx.Err(err))
	}

	if !success {
		if _, err := e.reg.Transition(ctx, t.ID, task.StatusRunning, task.StatusFailed); err != nil && !task.IsConcurrency(err) {
			e.log.Warn("failed-state transition rejected", logx.String("task_id", t.ID), logx.Err(err))
		}
		if e.met != nil {
			e.met.TasksFailed.Inc()
		}
		e.publish("task.failed", t, finalErr)
		e.log.Warn("task.failed", logx.String("task_id", t.ID), logx.String("task", t.Name), logx.Err(finalErr))
		return
	}

	if _, err := e.reg.Transition(ctx, t.ID, task.StatusRunning, task.StatusCompleted); err != nil {
		if !task.IsConcurrency(err) {
			e.log.Warn("completed-state transition rejected", logx.String("task_id", t.ID), logx.Err(err))
		}
		return
	}
	if e.met != nil {
		e.met.TasksSucceeded.Inc()
	}
	e.publish("task.completed", t, nil)
	e.log.Debug("task.completed", logx.String("task_id", t.ID), logx.String("task", t.Name))

	// Interval tasks cycle back to Pending until their bounds run out.
	if t.ScheduleType == task.ScheduleInterval {
		e.maybeRequeueInterval(ctx, t.ID, now)
	}
}

func (e *Executor) maybeRequeueInterval(ctx context.Context, id string, now time.Time) {
	cur, err := e.reg.Get(id)
	if err != nil || cur.Interval == nil {
		return
	}
	if cur.Interval.MaxExecutions > 0 && cur.ExecutionCount >= cur.Interval.MaxExecutions {
		return
	}
	if !cur.Interval.Until.IsZero() && now.After(cur.Interval.Until) {
		return
	}
	if _, err := e.reg.Transition(ctx, id, task.StatusCompleted, task.StatusPending); err != nil && !task.IsConcurrency(err) {
		e.log.Warn("interval requeue rejected", logx.String("task_id", id), logx.Err(err))
	}
}

// record appends the attempt to the bounded history and, when storage is
// wired, to the persistent result journal.
func (e *Executor) record(ctx context.Context, rs task.ExecutionResult) {
	e.hmu.Lock()
	e.history = append(e.history, rs)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
	e.hmu.Unlock()

	if e.store == nil {
		return
	}
	rec := storage.ResultRecord{
		TaskID:     rs.TaskID,
		StartedAt:  rs.StartedAt,
		FinishedAt: rs.FinishedAt,
		Success:    rs.Success,
		Attempt:    rs.Attempt,
		TookMS:     rs.Duration().Milliseconds(),
	}
	if rs.Err != nil {
		rec.ErrCode = rs.Err.Code
		rec.ErrMsg = rs.Err.Message
	}
	if err := e.store.AppendResult(ctx, rec); err != nil {
		e.log.Warn("result journal write failed", logx.String("task_id", rs.TaskID), logx.Err(err))
	}
}

// History returns a copy of the recent results, oldest first.
func (e *Executor) History() []task.ExecutionResult {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	return append([]task.ExecutionResult(nil), e.history...)
}

func (e *Executor) countSkip(t *task.Task) {
	if e.met != nil {
		e.met.TasksSkipped.Inc()
	}
	e.publish("task.skipped", t, nil)
	e.log.Debug("task already claimed", logx.String("task_id", t.ID))
}

func (e *Executor) publish(typ string, t *task.Task, err error) {
	if e.bus == nil {
		return
	}
	ev := Event{ID: t.ID, Name: t.Name, Kind: t.Kind}
	if err != nil {
		ev.Error = err.Error()
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

// Event is the payload attached to bus events.
type Event struct {
	ID    string
	Name  string
	Kind  string
	Error string
}

// backoffDelay is base * multiplier^(attempt-1), capped, with 20% jitter
// so herds of failing tasks don't retry in lockstep.
func (e *Executor) backoffDelay(rp *task.RetryPolicy, attempt int) time.Duration {
	base := 500 * time.Millisecond
	mult := 2.0
	if rp != nil {
		if rp.BackoffBase > 0 {
			base = rp.BackoffBase
		}
		if rp.BackoffMultiplier > 0 {
			mult = rp.BackoffMultiplier
		}
	}

	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= mult
		if d > float64(e.cfg.MaxBackoff) {
			d = float64(e.cfg.MaxBackoff)
			break
		}
	}

	e.rngMu.Lock()
	r := (e.rng.Float64()*2 - 1) * 0.2
	e.rngMu.Unlock()
	d *= 1 + r
	if d < 0 {
		d = 0
	}
	if d > float64(e.cfg.MaxBackoff) {
		d = float64(e.cfg.MaxBackoff)
	}
	return time.Duration(d)
}
