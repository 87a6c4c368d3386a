package task

import "time"

// Filter is a structural predicate over tasks. All fields are optional;
// zero values mean "don't care". Metadata entries match recursively, so a
// nested map constrains the corresponding nested fields only, which is how
// owner-scoped queries match metadata.ownerIdentity.id without flattening.
type Filter struct {
	ID           string
	Name         string
	Kind         string
	ScheduleType ScheduleType
	Status       Status

	// MinPriority, when non-nil, requires Priority >= *MinPriority.
	MinPriority *int

	// ScheduledBefore, when set, requires a non-zero ScheduledTime earlier
	// than the given instant.
	ScheduledBefore time.Time

	// Metadata constrains metadata entries; nested maps match recursively.
	Metadata map[string]any
}

// ForOwner returns a copy of the filter narrowed to one owner's tasks.
func (f Filter) ForOwner(owner OwnerIdentity) Filter {
	md := make(map[string]any, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		md[k] = v
	}
	ident := map[string]any{"id": owner.ID}
	if owner.Namespace != "" {
		ident["namespace"] = owner.Namespace
	}
	if owner.Type != "" {
		ident["type"] = owner.Type
	}
	md[MetaOwnerIdentity] = ident
	f.Metadata = md
	return f
}

// Matches reports whether the task satisfies every constraint in the filter.
func (f Filter) Matches(t *Task) bool {
	if f.ID != "" && f.ID != t.ID {
		return false
	}
	if f.Name != "" && f.Name != t.Name {
		return false
	}
	if f.Kind != "" && f.Kind != t.Kind {
		return false
	}
	if f.ScheduleType != "" && f.ScheduleType != t.ScheduleType {
		return false
	}
	if f.Status != "" && f.Status != t.Status {
		return false
	}
	if f.MinPriority != nil && t.Priority < *f.MinPriority {
		return false
	}
	if !f.ScheduledBefore.IsZero() {
		if t.ScheduledTime.IsZero() || !t.ScheduledTime.Before(f.ScheduledBefore) {
			return false
		}
	}
	if len(f.Metadata) > 0 && !matchMap(f.Metadata, t.Metadata) {
		return false
	}
	return true
}

// matchMap checks that every entry of want is present in got; nested maps
// recurse, scalars compare by equality.
func matchMap(want map[string]any, got map[string]any) bool {
	if got == nil {
		return false
	}
	for k, wv := range want {
		gv, ok := got[k]
		if !ok {
			return false
		}
		wm, wIsMap := wv.(map[string]any)
		if wIsMap {
			gm, gIsMap := gv.(map[string]any)
			if !gIsMap || !matchMap(wm, gm) {
				return false
			}
			continue
		}
		if !scalarEqual(wv, gv) {
			return false
		}
	}
	return true
}

// scalarEqual compares leaf values, tolerating the int/float64 split that
// JSON round-trips introduce.
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
