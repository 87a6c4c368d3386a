package timeexpr

import (
	"testing"
	"time"
)

var ref = time.Date(2025, time.March, 12, 14, 30, 45, 0, time.UTC) // a Wednesday

func TestParseRelativeForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "now", raw: "now", want: ref},
		{name: "today", raw: "today", want: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{name: "tomorrow", raw: "Tomorrow", want: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)},
		{name: "yesterday", raw: "yesterday", want: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{name: "next friday", raw: "next Friday", want: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
		{name: "next wednesday skips today", raw: "next wednesday", want: time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC)},
		{name: "next week", raw: "next week", want: time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC)},
		{name: "next month", raw: "next month", want: time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)},
		{name: "next year", raw: "NEXT YEAR", want: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		{name: "in 2 hours", raw: "in 2 hours", want: ref.Add(2 * time.Hour)},
		{name: "in 1 second", raw: "in 1 second", want: ref.Add(time.Second)},
		{name: "in 3 weeks", raw: "in 3 weeks", want: ref.AddDate(0, 0, 21)},
		{name: "in 2 months calendar", raw: "in 2 months", want: ref.AddDate(0, 2, 0)},
		{name: "compact seconds", raw: "45s", want: ref.Add(45 * time.Second)},
		{name: "compact months", raw: "2mo", want: ref.Add(2 * 30 * 24 * time.Hour)},
		{name: "compact years", raw: "1y", want: ref.Add(365 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw, ref)
			if !ok {
				t.Fatalf("Parse(%q) not recognized", tt.raw)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseLiterals(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2025-06-01T08:00:00Z", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
		{"2025-06-01 08:00", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
		{"2025-06-01", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2025/06/01", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"06/01/2025", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.raw, ref)
		if !ok {
			t.Fatalf("Parse(%q) not recognized", tt.raw)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseUnrecognized(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "whenever", "next fortnight", "in some hours", "13q"} {
		if got, ok := Parse(raw, ref); ok {
			t.Fatalf("Parse(%q) unexpectedly succeeded: %v", raw, got)
		}
	}
}

func TestParseIsDeterministic(t *testing.T) {
	t.Parallel()
	a, _ := Parse("in 5 minutes", ref)
	b, _ := Parse("in 5 minutes", ref)
	if !a.Equal(b) {
		t.Fatalf("non-deterministic parse: %v vs %v", a, b)
	}
}

func TestParseInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"in 90 seconds", 90 * time.Second},
		{"in 1 day", 24 * time.Hour},
		{"5m", 5 * time.Minute},
		{"3d", 3 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1mo", 30 * 24 * time.Hour},
		{"2h30m", 2*time.Hour + 30*time.Minute},
	}
	for _, tt := range tests {
		got, ok := ParseInterval(tt.raw)
		if !ok {
			t.Fatalf("ParseInterval(%q) not recognized", tt.raw)
		}
		if got != tt.want {
			t.Fatalf("ParseInterval(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	if _, ok := ParseInterval("soon"); ok {
		t.Fatal("expected failure for vague interval")
	}
}

func TestCalculateInterval(t *testing.T) {
	t.Parallel()
	got, ok := CalculateInterval(ref, "15m")
	if !ok || !got.Equal(ref.Add(15*time.Minute)) {
		t.Fatalf("CalculateInterval = (%v, %v)", got, ok)
	}
}

func TestHasPassed(t *testing.T) {
	t.Parallel()
	if HasPassed(ref.Add(time.Second), ref) {
		t.Fatal("future instant reported as passed")
	}
	if !HasPassed(ref, ref) {
		t.Fatal("equal instant should count as passed")
	}
	if !HasPassed(ref.Add(-time.Second), ref) {
		t.Fatal("past instant not reported as passed")
	}
}

func TestHumanDelta(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{3 * 24 * time.Hour, "3 days"},
		{24 * time.Hour, "1 day"},
		{2 * time.Hour, "2 hours"},
		{90 * time.Second, "1 minute"},
		{10 * time.Second, "10 seconds"},
		{400 * 24 * time.Hour, "1 year"},
	}
	for _, tt := range tests {
		if got := HumanDelta(ref, ref.Add(tt.d)); got != tt.want {
			t.Fatalf("HumanDelta(+%v) = %q, want %q", tt.d, got, tt.want)
		}
		// symmetric
		if got := HumanDelta(ref.Add(tt.d), ref); got != tt.want {
			t.Fatalf("HumanDelta(-%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
