// Package manager is the engine façade. It owns the poll loop that drives
// due-task discovery and execution, and exposes owner-scoped operations
// that stamp, inject, and filter owner identity so one agent's tasks are
// never visible to another.
package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agentsched/internal/observability/metrics"
	"agentsched/internal/runtime/supervisor"
	"agentsched/internal/task"
	"agentsched/internal/task/executor"
	"agentsched/internal/task/registry"
	"agentsched/internal/task/scheduler"
	"agentsched/internal/timeexpr"
	logx "agentsched/pkg/logx"
)

// Config tunes the poll loop.
type Config struct {
	// PollInterval is the tick period. Default 1s.
	PollInterval time.Duration

	// Location is the zone natural-language schedule expressions resolve
	// in ("today" means midnight in this zone). Nil means local time.
	Location *time.Location
}

// Manager wires the registry, scheduler, and executor behind one surface.
// Construct one per process or owner scope; it holds no global state, so
// tests can run many isolated instances.
type Manager struct {
	log    logx.Logger
	reg    *registry.Registry
	sched  *scheduler.Scheduler
	exec   *executor.Executor
	met    *metrics.Metrics
	oracle timeexpr.Oracle
	now    func() time.Time
	cfg    Config

	mu       sync.Mutex
	sup      *supervisor.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	ticks    atomic.Uint64
	lastTick atomic.Int64 // unix nano, 0 until the first tick
}

type Option func(*Manager)

func WithLogger(log logx.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithMetrics(met *metrics.Metrics) Option {
	return func(m *Manager) { m.met = met }
}

// WithOracle plugs in a resolver for vague schedule phrases that the fixed
// grammar rejects ("sometime soon"). Without one such phrases fail.
func WithOracle(o timeexpr.Oracle) Option {
	return func(m *Manager) { m.oracle = o }
}

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(reg *registry.Registry, sched *scheduler.Scheduler, exec *executor.Executor, cfg Config, opts ...Option) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	m := &Manager{
		log:   logx.Nop(),
		reg:   reg,
		sched: sched,
		exec:  exec,
		now:   time.Now,
		cfg:   cfg,
	}
	if cfg.Location != nil {
		loc := cfg.Location
		m.now = func() time.Time { return time.Now().In(loc) }
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	return m
}

// Start launches the poll loop. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.stopDone = make(chan struct{})
	stopCh := m.stopCh
	stopDone := m.stopDone

	var done sync.Once
	m.sup = supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.sup.GoRestart("manager.poll", func(ctx context.Context) error {
		err := m.pollLoop(ctx, stopCh)
		done.Do(func() { close(stopDone) })
		return err
	})
	m.log.Info("scheduler manager started", logx.Duration("poll_interval", m.cfg.PollInterval))
}

// Stop halts the poll loop and waits for the in-flight tick to finish.
// Safe to call multiple times and before Start.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	stopCh := m.stopCh
	stopDone := m.stopDone
	sup := m.sup
	m.stopCh = nil
	m.stopDone = nil
	m.sup = nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-stopDone:
	case <-ctx.Done():
	}
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	m.log.Info("scheduler manager stopped", logx.Uint64("ticks", m.ticks.Load()))
}

// pollLoop is serialized with respect to batch completion: the next tick
// fires only after the previous batch's executor call has returned.
func (m *Manager) pollLoop(ctx context.Context, stopCh <-chan struct{}) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	// A tick that blows up is logged and counted; the loop keeps going.
	defer func() {
		if r := recover(); r != nil {
			if m.met != nil {
				m.met.PollErrors.Inc()
			}
			m.log.Error("poll tick failed", logx.Any("panic", r))
		}
	}()

	now := m.now()
	m.ticks.Add(1)
	m.lastTick.Store(now.UnixNano())
	if m.met != nil {
		m.met.PollCycles.Inc()
	}

	due := m.sched.DueTasks(now)
	if m.met != nil {
		m.met.DueTasks.Observe(float64(len(due)))
	}
	if len(due) == 0 {
		return
	}
	m.log.Debug("poll tick", logx.Int("due", len(due)))
	m.exec.ExecuteTasks(ctx, due)
}

// ExecuteDueTasks runs one discover-and-execute cycle immediately, across
// all owners. Administrative use.
func (m *Manager) ExecuteDueTasks(ctx context.Context) []task.ExecutionResult {
	due := m.sched.DueTasks(m.now())
	return m.exec.ExecuteTasks(ctx, due)
}

// ExecuteDueTasksForAgent restricts the due set to one owner before
// dispatch: nothing another owner scheduled can slip into the batch. The
// owner matches on its full identity, the same way FindTasksForAgent does.
func (m *Manager) ExecuteDueTasksForAgent(ctx context.Context, owner task.OwnerIdentity) []task.ExecutionResult {
	f := task.Filter{}.ForOwner(owner)
	due := m.sched.DueTasks(m.now())
	scoped := due[:0]
	for _, t := range due {
		if f.Matches(t) {
			scoped = append(scoped, t)
		}
	}
	return m.exec.ExecuteTasks(ctx, scoped)
}

// FindTasks queries across all owners. Administrative use.
func (m *Manager) FindTasks(f task.Filter) []*task.Task {
	return m.reg.Find(f)
}

// FindTasksForAgent injects the owner constraint into the filter; the
// result is always a subset of the owner's tasks.
func (m *Manager) FindTasksForAgent(owner task.OwnerIdentity, f task.Filter) []*task.Task {
	return m.reg.Find(f.ForOwner(owner))
}

// GetTask returns one task by ID.
func (m *Manager) GetTask(id string) (*task.Task, error) {
	return m.reg.Get(id)
}

// UpdateTask applies caller edits. ID and owner identity stay immutable.
func (m *Manager) UpdateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	return m.reg.Update(ctx, t)
}

// CancelTask marks a task Cancelled from any non-terminal state. A running
// task keeps running until its executor observes the state at the next
// attempt boundary.
func (m *Manager) CancelTask(ctx context.Context, id string) (*task.Task, error) {
	return m.reg.Cancel(ctx, id)
}

// DeleteTask removes a task outright.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	return m.reg.Delete(ctx, id)
}

// Snapshot is a point-in-time diagnostic view.
type Snapshot struct {
	Tasks    int               `json:"tasks"`
	ByStatus map[string]int    `json:"byStatus"`
	Ticks    uint64            `json:"ticks"`
	LastTick time.Time         `json:"lastTick,omitempty"`
	History  []task.ExecutionResult `json:"history,omitempty"`
}

func (m *Manager) Snapshot() Snapshot {
	all := m.reg.Find(task.Filter{})
	s := Snapshot{
		Tasks:    len(all),
		ByStatus: make(map[string]int),
		Ticks:    m.ticks.Load(),
		History:  m.exec.History(),
	}
	for _, t := range all {
		s.ByStatus[string(t.Status)]++
	}
	if ns := m.lastTick.Load(); ns != 0 {
		s.LastTick = time.Unix(0, ns)
	}
	return s
}
