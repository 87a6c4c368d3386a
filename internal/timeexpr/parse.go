package timeexpr

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Supported relative forms (case-insensitive):
//
//	now | today | tomorrow | yesterday
//	next <weekday> | next week | next month | next year
//	in N second(s)|minute(s)|hour(s)|day(s)|week(s)|month(s)|year(s)
//	compact interval tokens: Ns Nm Nh Nd Nw Nmo Ny
//
// Absolute fallbacks: ISO-8601 plus common slash/space layouts.
var (
	reInUnit  = regexp.MustCompile(`^in\s+(\d+)\s+([a-z]+?)s?$`)
	reCompact = regexp.MustCompile(`^(\d+)(mo|[smhdwy])$`)
)

// literalLayouts are tried in order for absolute date/time fallbacks.
var literalLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse resolves a date/time expression against the reference instant.
// It reports false for anything outside the supported grammar.
func Parse(text string, ref time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return time.Time{}, false
	}
	loc := ref.Location()

	switch s {
	case "now":
		return ref, true
	case "today":
		return midnight(ref), true
	case "tomorrow":
		return midnight(ref).AddDate(0, 0, 1), true
	case "yesterday":
		return midnight(ref).AddDate(0, 0, -1), true
	case "next week":
		return midnight(ref).AddDate(0, 0, 7), true
	case "next month":
		return midnight(ref).AddDate(0, 1, 0), true
	case "next year":
		return midnight(ref).AddDate(1, 0, 0), true
	}

	if rest, ok := strings.CutPrefix(s, "next "); ok {
		if wd, ok := weekdays[strings.TrimSpace(rest)]; ok {
			days := int(wd-ref.Weekday()+7) % 7
			if days == 0 {
				days = 7
			}
			return midnight(ref).AddDate(0, 0, days), true
		}
		return time.Time{}, false
	}

	if m := reInUnit.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		switch m[2] {
		case "second":
			return ref.Add(time.Duration(n) * time.Second), true
		case "minute":
			return ref.Add(time.Duration(n) * time.Minute), true
		case "hour":
			return ref.Add(time.Duration(n) * time.Hour), true
		case "day":
			return ref.AddDate(0, 0, n), true
		case "week":
			return ref.AddDate(0, 0, 7*n), true
		case "month":
			return ref.AddDate(0, n, 0), true
		case "year":
			return ref.AddDate(n, 0, 0), true
		}
		return time.Time{}, false
	}

	if d, ok := parseCompact(s); ok {
		return ref.Add(d), true
	}

	// Absolute literal fallbacks, interpreted in the reference location.
	for _, layout := range literalLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(text), loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseInterval resolves an interval expression ("in 5 minutes", "2h", "3d")
// to a duration. Months approximate to 30 days and years to 365 days;
// calendar-exact arithmetic belongs to Parse.
func ParseInterval(text string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, false
	}

	if m := reInUnit.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return 0, false
		}
		if d, ok := unitDuration(m[2]); ok {
			return time.Duration(n) * d, true
		}
		return 0, false
	}

	if d, ok := parseCompact(s); ok {
		return d, true
	}

	// Go duration literals ("2h30m") round out the structured forms.
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}

// CalculateInterval adds a parsed interval expression to base.
func CalculateInterval(base time.Time, text string) (time.Time, bool) {
	d, ok := ParseInterval(text)
	if !ok {
		return time.Time{}, false
	}
	return base.Add(d), true
}

// HasPassed reports whether t is at or before the reference instant.
func HasPassed(t, ref time.Time) bool {
	return !t.After(ref)
}

func parseCompact(s string) (time.Duration, bool) {
	m := reCompact.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 0, false
	}
	d, ok := compactUnitDuration(m[2])
	if !ok {
		return 0, false
	}
	return time.Duration(n) * d, true
}

func unitDuration(unit string) (time.Duration, bool) {
	switch unit {
	case "second":
		return time.Second, true
	case "minute":
		return time.Minute, true
	case "hour":
		return time.Hour, true
	case "day":
		return 24 * time.Hour, true
	case "week":
		return 7 * 24 * time.Hour, true
	case "month":
		return 30 * 24 * time.Hour, true
	case "year":
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

func compactUnitDuration(unit string) (time.Duration, bool) {
	switch unit {
	case "s":
		return time.Second, true
	case "m":
		return time.Minute, true
	case "h":
		return time.Hour, true
	case "d":
		return 24 * time.Hour, true
	case "w":
		return 7 * 24 * time.Hour, true
	case "mo":
		return 30 * 24 * time.Hour, true
	case "y":
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
