package task

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		st   ScheduleType
		from Status
		to   Status
		want bool
	}{
		{"pending to running", ScheduleExplicit, StatusPending, StatusRunning, true},
		{"running to completed", ScheduleExplicit, StatusRunning, StatusCompleted, true},
		{"running to failed", ScheduleExplicit, StatusRunning, StatusFailed, true},
		{"pending to cancelled", ScheduleExplicit, StatusPending, StatusCancelled, true},
		{"running to cancelled", ScheduleExplicit, StatusRunning, StatusCancelled, true},
		{"completed to cancelled", ScheduleExplicit, StatusCompleted, StatusCancelled, false},
		{"failed to cancelled", ScheduleExplicit, StatusFailed, StatusCancelled, false},
		{"pending to completed skips running", ScheduleExplicit, StatusPending, StatusCompleted, false},
		{"completed to pending explicit", ScheduleExplicit, StatusCompleted, StatusPending, false},
		{"completed to pending interval", ScheduleInterval, StatusCompleted, StatusPending, true},
		{"failed to pending interval", ScheduleInterval, StatusFailed, StatusPending, false},
		{"running to pending", ScheduleInterval, StatusRunning, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.st, tt.from, tt.to))
		})
	}
}

func TestOwnerRoundTrip(t *testing.T) {
	tk := &Task{}
	_, ok := tk.Owner()
	require.False(t, ok)

	tk.SetOwner(OwnerIdentity{Namespace: "prod", Type: "agent", ID: "a-17"})
	got, ok := tk.Owner()
	require.True(t, ok)
	assert.Equal(t, OwnerIdentity{Namespace: "prod", Type: "agent", ID: "a-17"}, got)

	// Stored as a plain map so structural filters can reach into it.
	_, isMap := tk.Metadata[MetaOwnerIdentity].(map[string]any)
	assert.True(t, isMap)
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Task{
		ID:        NewID(),
		Name:      "rollup",
		DependsOn: []string{"a", "b"},
		Interval:  &IntervalConfig{Every: time.Minute},
		Retry:     &RetryPolicy{MaxAttempts: 3},
		Metadata: map[string]any{
			"note": "x",
			MetaOwnerIdentity: map[string]any{
				"namespace": "prod", "type": "agent", "id": "a-1",
			},
		},
	}
	cp := orig.Clone()

	cp.DependsOn[0] = "mutated"
	cp.Interval.Every = time.Hour
	cp.Retry.MaxAttempts = 9
	cp.Metadata[MetaOwnerIdentity].(map[string]any)["id"] = "a-2"

	assert.Equal(t, "a", orig.DependsOn[0])
	assert.Equal(t, time.Minute, orig.Interval.Every)
	assert.Equal(t, 3, orig.Retry.MaxAttempts)
	owner, _ := orig.Owner()
	assert.Equal(t, "a-1", owner.ID)
}

func TestNewIDSortsByCreation(t *testing.T) {
	const n = 200
	ids := make([]string, n)
	for i := range ids {
		ids[i] = NewID()
	}
	seen := make(map[string]struct{}, n)
	for i, id := range ids {
		require.Len(t, id, 26)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		if i > 0 {
			assert.Less(t, ids[i-1], id)
		}
	}
}

func TestNewIDConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	out := make(chan string, 64*8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 64; j++ {
				out <- NewID()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]struct{})
	for id := range out {
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 64*8)
}
