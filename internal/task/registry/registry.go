// Package registry owns the canonical task collection. It is the single
// source of truth: every read-modify-write sequence (status transitions,
// execution counters) is serialized behind its lock, which is what lets
// concurrent executor workers share task records safely.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"agentsched/internal/storage"
	"agentsched/internal/task"
	logx "agentsched/pkg/logx"
)

type Registry struct {
	log   logx.Logger
	store storage.Store // optional write-through journal
	now   func() time.Time

	mu    sync.RWMutex
	tasks map[string]*task.Task
}

type Option func(*Registry)

func WithLogger(log logx.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithStore enables best-effort write-through persistence. Store failures
// are logged, never propagated: the in-memory state stays authoritative.
func WithStore(st storage.Store) Option {
	return func(r *Registry) { r.store = st }
}

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		log:   logx.Nop(),
		now:   time.Now,
		tasks: make(map[string]*task.Task),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Create validates and stores a new task. The input is not mutated; the
// returned task carries the stamped ID, status, and creation time.
func (r *Registry) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	if t == nil {
		return nil, task.NewValidationError(task.CodeInvalidTask, "task is nil")
	}
	nt := t.Clone()
	if strings.TrimSpace(nt.Name) == "" {
		return nil, task.NewValidationError(task.CodeInvalidTask, "task name is required")
	}
	if strings.TrimSpace(nt.Kind) == "" {
		return nil, task.NewValidationError(task.CodeInvalidTask, "task kind is required")
	}
	if err := validateSchedule(nt); err != nil {
		return nil, err
	}

	if nt.ID == "" {
		nt.ID = task.NewID()
	}
	if nt.Status == "" {
		nt.Status = task.StatusPending
	}
	if nt.CreatedAt.IsZero() {
		nt.CreatedAt = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[nt.ID]; exists {
		return nil, task.NewValidationError(task.CodeInvalidTask, "task id already exists: "+nt.ID)
	}
	if err := r.checkDependenciesLocked(nt); err != nil {
		return nil, err
	}

	r.tasks[nt.ID] = nt
	r.persistLocked(ctx, nt)
	return nt.Clone(), nil
}

// Get returns a copy of the task, or a ValidationError with code
// unknown_task when absent.
func (r *Registry) Get(id string) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, task.NewValidationError(task.CodeUnknownTask, "no task with id "+id)
	}
	return t.Clone(), nil
}

// Update replaces a task's mutable fields. ID and owner identity are
// immutable: changing either fails without applying anything. Execution
// bookkeeping (status, counters) is preserved from the stored task unless
// the update sets it explicitly.
func (r *Registry) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	if t == nil || t.ID == "" {
		return nil, task.NewValidationError(task.CodeInvalidTask, "task id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[t.ID]
	if !ok {
		return nil, task.NewValidationError(task.CodeUnknownTask, "no task with id "+t.ID)
	}

	curOwner, curHas := cur.Owner()
	newOwner, newHas := t.Owner()
	if curHas != newHas || (curHas && curOwner != newOwner) {
		return nil, task.NewValidationError(task.CodeImmutableField, "owner identity is immutable")
	}

	nt := t.Clone()
	if strings.TrimSpace(nt.Name) == "" {
		return nil, task.NewValidationError(task.CodeInvalidTask, "task name is required")
	}
	if err := validateSchedule(nt); err != nil {
		return nil, err
	}
	if err := r.checkDependenciesLocked(nt); err != nil {
		return nil, err
	}

	nt.CreatedAt = cur.CreatedAt
	if nt.Status == "" {
		nt.Status = cur.Status
	}
	if nt.LastExecutedAt.IsZero() {
		nt.LastExecutedAt = cur.LastExecutedAt
	}
	if nt.ExecutionCount == 0 {
		nt.ExecutionCount = cur.ExecutionCount
	}

	r.tasks[nt.ID] = nt
	r.persistLocked(ctx, nt)
	return nt.Clone(), nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return task.NewValidationError(task.CodeUnknownTask, "no task with id "+id)
	}
	delete(r.tasks, id)
	if r.store != nil {
		if err := r.store.DeleteTask(ctx, id); err != nil {
			r.log.Warn("task journal delete failed", logx.String("task_id", id), logx.Err(err))
		}
	}
	return nil
}

// Find returns copies of all tasks matching the filter, in creation order
// (task IDs sort lexicographically by creation time).
func (r *Registry) Find(f task.Filter) []*task.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if f.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transition atomically moves a task from one status to another. When the
// current status differs from the expected one it returns a
// ConcurrencyError, which callers treat as a benign skip. This is the
// mutual-exclusion point that prevents double execution.
func (r *Registry) Transition(ctx context.Context, id string, from, to task.Status) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, task.NewValidationError(task.CodeUnknownTask, "no task with id "+id)
	}
	if t.Status != from {
		return nil, &task.ConcurrencyError{TaskID: id, Expected: from, Actual: t.Status}
	}
	if !task.CanTransition(t.ScheduleType, from, to) {
		return nil, task.NewValidationError(task.CodeInvalidTask,
			"illegal transition "+string(from)+" -> "+string(to))
	}
	t.Status = to
	r.persistLocked(ctx, t)
	return t.Clone(), nil
}

// Cancel marks a task Cancelled from any non-terminal state.
func (r *Registry) Cancel(ctx context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, task.NewValidationError(task.CodeUnknownTask, "no task with id "+id)
	}
	if t.Status.Terminal() {
		return nil, &task.ConcurrencyError{TaskID: id, Expected: task.StatusPending, Actual: t.Status}
	}
	t.Status = task.StatusCancelled
	r.persistLocked(ctx, t)
	return t.Clone(), nil
}

// RecordExecution bumps the execution counter and last-run instant after
// an attempt cycle finishes.
func (r *Registry) RecordExecution(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return task.NewValidationError(task.CodeUnknownTask, "no task with id "+id)
	}
	t.LastExecutedAt = at
	t.ExecutionCount++
	r.persistLocked(ctx, t)
	return nil
}

// Len reports the number of stored tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// LoadFrom restores tasks persisted by a previous run. Tasks found in
// Running state are reset to Pending: the run they were in did not survive
// the restart. Undecodable records are skipped with a warning.
func (r *Registry) LoadFrom(ctx context.Context, st storage.Store) (int, error) {
	if st == nil {
		return 0, nil
	}
	recs, err := st.LoadTasks(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range recs {
		var t task.Task
		if err := json.Unmarshal(rec.Payload, &t); err != nil {
			r.log.Warn("skipping undecodable task record",
				logx.String("task_id", rec.ID), logx.Err(err))
			continue
		}
		if t.ID == "" {
			t.ID = rec.ID
		}
		if t.Status == task.StatusRunning {
			t.Status = task.StatusPending
		}
		r.tasks[t.ID] = &t
		n++
	}
	return n, nil
}

func (r *Registry) persistLocked(ctx context.Context, t *task.Task) {
	if r.store == nil {
		return
	}
	payload, err := json.Marshal(t)
	if err != nil {
		r.log.Warn("task encode failed", logx.String("task_id", t.ID), logx.Err(err))
		return
	}
	if err := r.store.PutTask(ctx, storage.TaskRecord{ID: t.ID, Payload: payload}); err != nil {
		r.log.Warn("task journal write failed", logx.String("task_id", t.ID), logx.Err(err))
	}
}

// checkDependenciesLocked rejects unknown dependency IDs and any
// dependency set that closes a cycle, computed by walking reachability
// from the task's dependencies back to the task itself.
func (r *Registry) checkDependenciesLocked(t *task.Task) error {
	if len(t.DependsOn) == 0 {
		return nil
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return task.NewValidationError(task.CodeCyclicDependency, "task depends on itself")
		}
		if _, ok := r.tasks[dep]; !ok {
			return task.NewValidationError(task.CodeInvalidTask, "unknown dependency: "+dep)
		}
	}

	seen := map[string]bool{}
	stack := append([]string(nil), t.DependsOn...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == t.ID {
			return task.NewValidationError(task.CodeCyclicDependency,
				"dependency cycle through task "+t.ID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if dep, ok := r.tasks[id]; ok {
			stack = append(stack, dep.DependsOn...)
		}
	}
	return nil
}

func validateSchedule(t *task.Task) error {
	if !t.ScheduleType.Valid() {
		return task.NewValidationError(task.CodeInvalidTask,
			"unknown schedule type: "+string(t.ScheduleType))
	}
	switch t.ScheduleType {
	case task.ScheduleExplicit:
		if t.ScheduledTime.IsZero() {
			return task.NewValidationError(task.CodeInvalidTask,
				"explicit schedule requires scheduledTime")
		}
	case task.ScheduleInterval:
		if t.Interval == nil || t.Interval.Every <= 0 {
			return task.NewValidationError(task.CodeInvalidTask,
				"interval schedule requires a positive period")
		}
	}
	return nil
}
