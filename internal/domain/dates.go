package domain

import "time"

// AddMonths advances t by the given number of calendar months. When the target
// month is shorter than t's day, the result is clamped to its last day, so
// Jan 31 + 1 month is Feb 28 (or Feb 29 in a leap year).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
