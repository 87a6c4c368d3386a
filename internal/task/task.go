package task

import (
	"time"
)

// ScheduleType selects which scheduling strategy governs a task.
type ScheduleType string

const (
	// ScheduleExplicit runs once at a specific instant.
	ScheduleExplicit ScheduleType = "explicit"
	// ScheduleInterval runs repeatedly every fixed duration, optionally
	// bounded by a max execution count or an end instant.
	ScheduleInterval ScheduleType = "interval"
	// SchedulePriority has no fixed time; it becomes eligible once its
	// priority crosses a threshold and it has been pending long enough.
	SchedulePriority ScheduleType = "priority"
)

func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleExplicit, ScheduleInterval, SchedulePriority:
		return true
	}
	return false
}

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible from s,
// short of the interval cycle-back handled by CanTransition.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a task of the given schedule type may move
// from one status to another. The graph is fixed: Pending->Running,
// Running->Completed|Failed, any non-terminal ->Cancelled, and for interval
// tasks only, Completed->Pending.
func CanTransition(st ScheduleType, from, to Status) bool {
	switch {
	case from == StatusPending && to == StatusRunning:
		return true
	case from == StatusRunning && (to == StatusCompleted || to == StatusFailed):
		return true
	case to == StatusCancelled && !from.Terminal():
		return true
	case from == StatusCompleted && to == StatusPending && st == ScheduleInterval:
		return true
	}
	return false
}

// IntervalConfig bounds a recurring task.
type IntervalConfig struct {
	// Every is the period between runs.
	Every time.Duration `json:"every"`
	// MaxExecutions, when positive, caps the number of completed runs.
	MaxExecutions int `json:"maxExecutions,omitempty"`
	// Until, when set, is the instant after which the task stops recurring.
	Until time.Time `json:"until,omitempty"`
}

// RetryPolicy controls per-attempt retry behavior in the executor.
type RetryPolicy struct {
	MaxAttempts       int           `json:"maxAttempts"`
	BackoffBase       time.Duration `json:"backoffBase"`
	BackoffMultiplier float64       `json:"backoffMultiplier"`
}

// OwnerIdentity isolates one agent's tasks from another's. It is stored
// nested under Metadata[MetaOwnerIdentity] and is immutable after creation.
type OwnerIdentity struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	ID        string `json:"id"`
}

// MetaOwnerIdentity is the metadata key holding the owner identity map.
const MetaOwnerIdentity = "ownerIdentity"

// Task is the unit of schedulable work.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Kind selects the handler that executes this task.
	Kind string `json:"kind"`

	ScheduleType  ScheduleType    `json:"scheduleType"`
	ScheduledTime time.Time       `json:"scheduledTime,omitempty"`
	Interval      *IntervalConfig `json:"interval,omitempty"`
	Priority      int             `json:"priority,omitempty"`

	Status Status       `json:"status"`
	Retry  *RetryPolicy `json:"retry,omitempty"`

	// Timeout bounds a single execution attempt. Zero means the executor's
	// default applies.
	Timeout time.Duration `json:"timeout,omitempty"`

	// DependsOn lists task IDs that must be Completed before this task
	// becomes eligible.
	DependsOn []string `json:"dependsOn,omitempty"`

	// Metadata carries caller-defined fields plus the mandatory nested
	// owner identity under MetaOwnerIdentity.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	LastExecutedAt time.Time `json:"lastExecutedAt,omitempty"`
	ExecutionCount int       `json:"executionCount"`
}

// Owner extracts the owner identity from metadata. ok is false when the
// task carries none (system/administrative tasks).
func (t *Task) Owner() (OwnerIdentity, bool) {
	raw, ok := t.Metadata[MetaOwnerIdentity]
	if !ok {
		return OwnerIdentity{}, false
	}
	switch v := raw.(type) {
	case OwnerIdentity:
		return v, true
	case map[string]any:
		id := OwnerIdentity{}
		id.Namespace, _ = v["namespace"].(string)
		id.Type, _ = v["type"].(string)
		id.ID, _ = v["id"].(string)
		if id.ID == "" {
			return OwnerIdentity{}, false
		}
		return id, true
	}
	return OwnerIdentity{}, false
}

// SetOwner stamps the owner identity into metadata, allocating the map if
// needed. It stores the map form so filters match structurally.
func (t *Task) SetOwner(id OwnerIdentity) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, 1)
	}
	t.Metadata[MetaOwnerIdentity] = map[string]any{
		"namespace": id.Namespace,
		"type":      id.Type,
		"id":        id.ID,
	}
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Interval != nil {
		iv := *t.Interval
		cp.Interval = &iv
	}
	if t.Retry != nil {
		rp := *t.Retry
		cp.Retry = &rp
	}
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Metadata != nil {
		cp.Metadata = cloneValueMap(t.Metadata)
	}
	return &cp
}

func cloneValueMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneValueMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
