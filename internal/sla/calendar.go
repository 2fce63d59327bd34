package sla

import (
	"fmt"
	"time"
)

// OperatingZone is the fixed civil timezone (UTC+2, no DST) used when no
// named zone is configured or the named zone cannot be loaded.
var OperatingZone = time.FixedZone("SAST", 2*60*60)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) sinceMidnight() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

// on returns the given day at this time of day, in the day's location.
func (c ClockTime) on(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// LoadLocation resolves a named timezone, falling back to OperatingZone
// when the name is empty or the zone database has no entry for it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return OperatingZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return OperatingZone
	}
	return loc
}

// Calendar answers business-hours questions in the operating timezone.
// Business days are Monday to Friday; there is no holiday calendar.
type Calendar struct {
	loc   *time.Location
	start ClockTime
	end   ClockTime
}

// NewCalendar creates a calendar for the given zone and business-day window.
func NewCalendar(loc *time.Location, start, end ClockTime) Calendar {
	if loc == nil {
		loc = OperatingZone
	}
	return Calendar{loc: loc, start: start, end: end}
}

// DefaultCalendar returns the 08:00-16:30 calendar in OperatingZone.
func DefaultCalendar() Calendar {
	return NewCalendar(OperatingZone, ClockTime{Hour: 8}, ClockTime{Hour: 16, Minute: 30})
}

// Location returns the operating timezone.
func (c Calendar) Location() *time.Location {
	return c.loc
}

// Local converts t into the operating timezone.
func (c Calendar) Local(t time.Time) time.Time {
	return t.In(c.loc)
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an RFC 3339 timestamp. Timestamps without a zone
// offset are taken to already be in the operating timezone.
func (c Calendar) ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(c.loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", ErrInvalidInput, s)
}

// InBusinessHours reports whether t falls on a weekday between the start
// and end of the business day, both ends inclusive.
func (c Calendar) InBusinessHours(t time.Time) bool {
	local := c.Local(t)
	if isWeekend(local) {
		return false
	}
	tod := timeOfDay(local)
	return tod >= c.start.sinceMidnight() && tod <= c.end.sinceMidnight()
}

// NextBusinessDayStart returns the start of the first weekday strictly
// after the calendar day of t. It never returns the same day, even when t
// is a weekday before opening time.
func (c Calendar) NextBusinessDayStart(t time.Time) time.Time {
	day := c.Local(t).AddDate(0, 0, 1)
	for isWeekend(day) {
		day = day.AddDate(0, 0, 1)
	}
	return c.start.on(day)
}

// AddBusinessDays returns close of business on the n-th business day
// after t. When t is outside business hours, counting starts from the
// next business-day start.
func (c Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	current := c.Local(t)
	if !c.InBusinessHours(current) || timeOfDay(current) >= c.end.sinceMidnight() {
		current = c.NextBusinessDayStart(current)
	}

	for added := 0; added < n; {
		current = current.AddDate(0, 0, 1)
		if !isWeekend(current) {
			added++
		}
	}
	return c.end.on(current)
}

// QuarterBounds returns the start of the calendar quarter containing t and
// the start of the following quarter, in the operating timezone.
func (c Calendar) QuarterBounds(t time.Time) (start, end time.Time) {
	local := c.Local(t)
	firstMonth := time.Month((int(local.Month())-1)/3*3 + 1)
	start = time.Date(local.Year(), firstMonth, 1, 0, 0, 0, 0, c.loc)
	return start, start.AddDate(0, 3, 0)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
