package timeutil

import (
	"fmt"
	"time"
)

// Relative formats t relative to the current time.
func Relative(t time.Time) string {
	return RelativeTo(t, time.Now())
}

// RelativeTo formats t relative to now: "just now", "5 minutes ago",
// "in 2 hours". Times more than a week away are printed as a date.
func RelativeTo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	future := d < 0
	if future {
		d = -d
	}

	var phrase string
	switch {
	case d < 10*time.Second:
		return "just now"
	case d < time.Minute:
		phrase = plural(int(d/time.Second), "second")
	case d < time.Hour:
		phrase = plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		phrase = plural(int(d/time.Hour), "hour")
	case d < 7*24*time.Hour:
		phrase = plural(int(d/(24*time.Hour)), "day")
	default:
		return t.Local().Format("2006-01-02")
	}

	if future {
		return "in " + phrase
	}
	return phrase + " ago"
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
