package domain

import "time"

// sessionWindow is a named wall-clock window in the reference timezone.
type sessionWindow struct {
	Name      string
	StartHour int
	EndHour   int // exclusive; windows never wrap midnight in the reference tz
}

const (
	SessionAsia    = "asia"
	SessionLondon  = "london"
	SessionNewYork = "newyork"
)

// Killzone schedule in New York local time. London 02:00-05:00 and New York
// 07:00-10:00 track the institutional open windows; Asia covers the evening
// block before the next London open.
var sessionTable = []sessionWindow{
	{Name: SessionAsia, StartHour: 19, EndHour: 23},
	{Name: SessionLondon, StartHour: 2, EndHour: 5},
	{Name: SessionNewYork, StartHour: 7, EndHour: 10},
}

// ActiveSession returns the session containing t in the given timezone, or ""
// when no window is active. DST is handled by the location itself.
func ActiveSession(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	hour := local.Hour()
	for _, w := range sessionTable {
		if hour >= w.StartHour && hour < w.EndHour {
			return w.Name
		}
	}
	return ""
}

// IsWeekend reports whether t falls on Saturday or Sunday in the given
// timezone.
func IsWeekend(t time.Time, loc *time.Location) bool {
	day := t.In(loc).Weekday()
	return day == time.Saturday || day == time.Sunday
}
