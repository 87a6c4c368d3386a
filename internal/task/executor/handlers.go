package executor

import (
	"context"
	"sort"
	"sync"

	"agentsched/internal/task"
)

// Handler executes one task attempt. The returned output is recorded on the
// attempt's ExecutionResult; a non-nil error triggers the retry policy.
// Handlers should honor ctx to support per-task timeouts and cancellation.
type Handler func(ctx context.Context, t task.Task) (output any, err error)

// Resolver maps a task kind to its handler. The mapping is injected by the
// caller; the engine never hard-codes handlers.
type Resolver interface {
	Resolve(kind string) (Handler, bool)
}

// HandlerMap is a Resolver backed by a plain map, safe for concurrent use.
type HandlerMap struct {
	mu sync.RWMutex
	m  map[string]Handler
}

func NewHandlerMap() *HandlerMap {
	return &HandlerMap{m: make(map[string]Handler)}
}

func (h *HandlerMap) Register(kind string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m[kind] = fn
}

func (h *HandlerMap) Resolve(kind string) (Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.m[kind]
	return fn, ok
}

// Kinds lists the registered kinds, sorted, for diagnostics.
func (h *HandlerMap) Kinds() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.m))
	for k := range h.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
