package ranking

import "time"

// Week is a completed Monday-through-Sunday calendar window. End is the
// last instant of the window's Sunday.
type Week struct {
	Start time.Time
	End   time.Time
}

// CompletedWeek returns the most recently finished calendar week before
// now in loc. A mid-week now still resolves to the window ending on the
// previous Sunday; the running week is never included.
func CompletedWeek(now time.Time, loc *time.Location) Week {
	local := now.In(loc)

	// Walk back to the Monday of the running week, then one more week.
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	runningMonday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -(weekday - 1))

	start := runningMonday.AddDate(0, 0, -7)
	end := runningMonday.Add(-time.Nanosecond)
	return Week{Start: start, End: end}
}

// Previous returns the window immediately before w.
func (w Week) Previous() Week {
	return Week{
		Start: w.Start.AddDate(0, 0, -7),
		End:   w.End.AddDate(0, 0, -7),
	}
}
