package compliance

import (
	"fmt"
	"time"
)

// Calendar flags which weekdays count as working days. Rules that are
// explicitly day-count based walk this calendar; everything else uses plain
// calendar days.
type Calendar map[time.Weekday]bool

func (c Calendar) IsWorkingDay(t time.Time) bool {
	return c[t.Weekday()]
}

func (c Calendar) HasWorkingDay() bool {
	return c.WorkingDaysPerWeek() > 0
}

// WorkingDaysPerWeek counts the enabled weekdays.
func (c Calendar) WorkingDaysPerWeek() int {
	n := 0
	for _, on := range c {
		if on {
			n++
		}
	}
	return n
}

// WindowStart walks back n working days from asOf and returns that date at
// midnight. An entry is "within the last n days" when its work date is
// strictly after the returned boundary.
func (c Calendar) WindowStart(asOf time.Time, n int) time.Time {
	day := dateOf(asOf)
	if !c.HasWorkingDay() {
		// Degenerate calendar; treat every day as working rather than loop.
		return day.AddDate(0, 0, -n)
	}
	counted := 0
	for counted < n {
		day = day.AddDate(0, 0, -1)
		if c[day.Weekday()] {
			counted++
		}
	}
	return day
}

// dateOf truncates a timestamp to its calendar date in UTC.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// calendarDaysBetween counts whole calendar days from a to b (negative when
// b precedes a).
func calendarDaysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)) / (24 * time.Hour))
}

// isoWeekAnchor renders the ISO week containing t, used as a dedup-key
// time-window anchor.
func isoWeekAnchor(t time.Time) string {
	year, week := dateOf(t).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// previousISOWeek returns the Monday and the exclusive end of the most
// recently completed ISO week before asOf.
func previousISOWeek(asOf time.Time) (start, end time.Time) {
	day := dateOf(asOf)
	// Walk back to the Monday of the current week, then one week further.
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	currentMonday := day.AddDate(0, 0, -offset)
	start = currentMonday.AddDate(0, 0, -7)
	end = currentMonday
	return start, end
}
