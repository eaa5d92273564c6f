package domain

import "time"

// EndOfMonth returns the last instant (23:59:59) of t's month in t's location.
func EndOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNext.Add(-time.Second)
}

// StartOfMonth returns midnight on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// NextMonthEnd returns the end of the month following t's month.
func NextMonthEnd(t time.Time) time.Time {
	return EndOfMonth(time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()))
}

// EndOfDay returns 23:59:59 on t's day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
