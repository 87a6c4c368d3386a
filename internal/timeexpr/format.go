package timeexpr

import (
	"fmt"
	"time"
)

// HumanDelta renders the difference between two instants using the largest
// whole unit, e.g. "3 days" or "1 hour". Order of arguments doesn't matter.
func HumanDelta(a, b time.Time) string {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}

	switch {
	case d >= 365*24*time.Hour:
		return plural(int(d/(365*24*time.Hour)), "year")
	case d >= 30*24*time.Hour:
		return plural(int(d/(30*24*time.Hour)), "month")
	case d >= 7*24*time.Hour:
		return plural(int(d/(7*24*time.Hour)), "week")
	case d >= 24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
