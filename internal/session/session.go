// Package session models a daily trading session (time zone, open/close
// times, trading weekdays, holidays) and watches for session boundaries so
// per-instrument history can be reset at each open.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Calendar describes when the market trades. All calculations are done in Loc.
type Calendar struct {
	Loc      *time.Location
	Open     time.Duration // local wall-clock time of day
	Close    time.Duration // local wall-clock time of day; Close > Open
	Weekdays map[time.Weekday]bool
	holidays map[string]bool
}

// NewCalendar builds a Monday to Friday calendar from "HH:MM" open and close times.
// holidays are "2006-01-02" dates in loc.
func NewCalendar(loc *time.Location, open, close string, holidays []string) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	if c <= o {
		return nil, fmt.Errorf("session close %s must be after open %s", close, open)
	}

	cal := &Calendar{
		Loc:   loc,
		Open:  o,
		Close: c,
		Weekdays: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
		holidays: make(map[string]bool, len(holidays)),
	}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		d, err := time.ParseInLocation("2006-01-02", h, loc)
		if err != nil {
			return nil, fmt.Errorf("session holiday %q: %w", h, err)
		}
		cal.holidays[dateKey(d)] = true
	}
	return cal, nil
}

// AllDays marks every weekday as a trading day (24x7 style markets).
func (c *Calendar) AllDays() *Calendar {
	for d := time.Sunday; d <= time.Saturday; d++ {
		c.Weekdays[d] = true
	}
	return c
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// wallClock places a time of day on t's local date. Unlike adding to
// midnight it stays on the clock reading across DST transitions.
func wallClock(t time.Time, clock time.Duration) time.Time {
	h := int(clock / time.Hour)
	m := int(clock % time.Hour / time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())
}

// clockOf returns the local time of day of t.
func clockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// IsHoliday returns true if the local date of t is a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[dateKey(t.In(c.Loc))]
}

// IsTradingDay returns true if t is a trading weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.Loc)
	return c.Weekdays[local.Weekday()] && !c.IsHoliday(local)
}

// IsOpen returns true if t falls within [open, close) on a trading day.
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(c.Loc)
	if !c.IsTradingDay(local) {
		return false
	}
	off := clockOf(local)
	return off >= c.Open && off < c.Close
}

// TodayOpen returns the open time on t's local date.
func (c *Calendar) TodayOpen(t time.Time) time.Time {
	return wallClock(t.In(c.Loc), c.Open)
}

// TodayClose returns the close time on t's local date.
func (c *Calendar) TodayClose(t time.Time) time.Time {
	return wallClock(t.In(c.Loc), c.Close)
}

// NextOpen returns the next session open strictly after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	local := t.In(c.Loc)

	if open := c.TodayOpen(local); local.Before(open) && c.IsTradingDay(local) {
		return open
	}

	d := midnight(local).AddDate(0, 0, 1)
	for i := 0; i < 30; i++ { // weekends + holiday runs
		if c.IsTradingDay(d) {
			return wallClock(d, c.Open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return wallClock(midnight(local).AddDate(0, 0, 1), c.Open)
}

// TimeUntilClose returns the duration until today's close, or 0 when the
// session is not open.
func (c *Calendar) TimeUntilClose(t time.Time) time.Duration {
	if !c.IsOpen(t) {
		return 0
	}
	return c.TodayClose(t).Sub(t)
}

// StatusString returns a human-readable session status.
func (c *Calendar) StatusString(t time.Time) string {
	if c.IsOpen(t) {
		return fmt.Sprintf("Session open, closes in %s", fmtDur(c.TimeUntilClose(t)))
	}
	next := c.NextOpen(t)
	return fmt.Sprintf("Session closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
