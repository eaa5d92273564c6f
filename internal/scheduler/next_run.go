package scheduler

import "time"

// NextMonthlyRun returns the last calendar day of now's month at
// hour:minute in loc, or the same point of the following month when that
// moment is not strictly after now.
func NextMonthlyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	candidate := lastDayAt(local.Year(), local.Month(), hour, minute, loc)
	if !candidate.After(local) {
		candidate = lastDayAt(local.Year(), local.Month()+1, hour, minute, loc)
	}
	return candidate
}

func lastDayAt(year int, month time.Month, hour, minute int, loc *time.Location) time.Time {
	// Day 0 of the next month normalizes to the last day of month.
	return time.Date(year, month+1, 0, hour, minute, 0, 0, loc)
}
