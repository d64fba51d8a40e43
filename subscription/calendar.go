package subscription

import "time"

// AddMonths adds n calendar months to t keeping the wall clock. The day is
// clamped to the last day of the target month, so Jan 31 + 1 is Feb 28 (or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// MonthsBetween returns the number of whole calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return -MonthsBetween(b, a)
	}
	ay, am, _ := a.Date()
	by, bm, _ := b.In(a.Location()).Date()
	n := (by-ay)*12 + int(bm-am)
	for n > 0 && AddMonths(a, n).After(b) {
		n--
	}
	return n
}

// DaysBetween returns the number of whole 24h days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// DayBefore reports whether a falls on an earlier calendar date than b in loc.
func DayBefore(a, b time.Time, loc *time.Location) bool {
	return truncateDay(a, loc).Before(truncateDay(b, loc))
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
