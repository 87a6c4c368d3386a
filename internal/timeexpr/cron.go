package timeexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// recurringPhrases maps the supported recurring-schedule phrases to fixed
// five-field cron expressions. The table is exhaustive on purpose; anything
// outside it is not a recurring phrase.
var recurringPhrases = map[string]string{
	"every minute": "* * * * *",
	"every hour":   "0 * * * *",
	"hourly":       "0 * * * *",
	"every day":    "0 0 * * *",
	"daily":        "0 0 * * *",
	"every week":   "0 0 * * 0",
	"weekly":       "0 0 * * 0",
	"every month":  "0 0 1 * *",
	"monthly":      "0 0 1 * *",
	"every year":   "0 0 1 1 *",
	"yearly":       "0 0 1 1 *",
	"annually":     "0 0 1 1 *",
}

// ToCronExpression maps a recurring natural-language phrase to a five-field
// cron expression. "every <weekday>" resolves to midnight on that weekday.
func ToCronExpression(text string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", false
	}
	if expr, ok := recurringPhrases[s]; ok {
		return expr, true
	}
	if rest, ok := strings.CutPrefix(s, "every "); ok {
		if wd, ok := weekdays[strings.TrimSpace(rest)]; ok {
			return fmt.Sprintf("0 0 * * %d", int(wd)), true
		}
	}
	return "", false
}

// NextOccurrence returns the first instant strictly after the given one at
// which the five-field cron expression fires.
func NextOccurrence(expr string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(after), nil
}
