// Package scheduler composes the strategy chain with the registry to
// produce the ordered set of currently-due tasks. It is a pure read path:
// calling it twice without executing anything returns the same set.
package scheduler

import (
	"sort"
	"time"

	"agentsched/internal/task"
	"agentsched/internal/task/strategy"
	logx "agentsched/pkg/logx"
)

// TaskSource is the registry surface the scheduler reads from.
type TaskSource interface {
	Find(f task.Filter) []*task.Task
	Get(id string) (*task.Task, error)
}

type Scheduler struct {
	log   logx.Logger
	src   TaskSource
	chain *strategy.Chain
}

func New(src TaskSource, chain *strategy.Chain, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{log: log, src: src, chain: chain}
}

// DueTasks returns every pending task the strategy chain considers due at
// the given instant, with all dependencies Completed, ordered by priority
// descending then creation order ascending (stable tie-break). The
// ordering is the only fairness guarantee the executor relies on.
func (s *Scheduler) DueTasks(now time.Time) []*task.Task {
	candidates := s.src.Find(task.Filter{Status: task.StatusPending})

	due := candidates[:0]
	for _, t := range candidates {
		if !s.chain.IsDue(t, now) {
			continue
		}
		if !s.dependenciesMet(t) {
			continue
		}
		due = append(due, t)
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return sortKey(due[i]).Before(sortKey(due[j]))
	})
	return due
}

// NextRunTime forwards to the governing strategy, for snapshots and
// diagnostics.
func (s *Scheduler) NextRunTime(t *task.Task, now time.Time) (time.Time, bool) {
	return s.chain.NextRunTime(t, now)
}

func (s *Scheduler) dependenciesMet(t *task.Task) bool {
	for _, dep := range t.DependsOn {
		d, err := s.src.Get(dep)
		if err != nil {
			s.log.Warn("dependency lookup failed",
				logx.String("task_id", t.ID), logx.String("dep_id", dep), logx.Err(err))
			return false
		}
		if d.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// sortKey is the task's scheduled instant when it has one, else its
// creation time. Tasks sharing a priority run oldest-first.
func sortKey(t *task.Task) time.Time {
	if !t.ScheduledTime.IsZero() {
		return t.ScheduledTime
	}
	return t.CreatedAt
}
