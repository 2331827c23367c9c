// Package calendar answers working-time questions against an operational-hours
// profile. All arithmetic happens in a single canonical time zone; callers may
// pass instants in any zone and get results in that canonical zone.
package calendar

import (
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// DefaultTimezone is the canonical zone used when none is configured.
const DefaultTimezone = "Asia/Manila"

// maxIdleDays bounds how far Advance searches past the last working window.
const maxIdleDays = 400

const minutesPerDay = 24 * 60

// window is a half-open [start,end) range in minutes of the day.
type window struct {
	start int
	end   int
}

// Calendar is an immutable compiled profile.
type Calendar struct {
	loc             *time.Location
	days            [7][]window
	excludeHolidays bool
	holidays        map[string]struct{}
	recurring       map[string]struct{}
}

// RoundTheClock returns a calendar where every instant is working time.
func RoundTheClock(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{loc: loc}
	for d := range c.days {
		c.days[d] = []window{{start: 0, end: minutesPerDay}}
	}
	return c
}

// Location returns the canonical zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// StartOfDay returns local midnight of the day containing t.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

// EndOfDay returns the last representable instant of the day containing t.
func (c *Calendar) EndOfDay(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 23, 59, 59, 999999999, c.loc)
}

// ParseDate parses YYYY-MM-DD as local midnight.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format %q: %w", s, err)
	}
	return t, nil
}

// IsHoliday reports whether the date of t is an excluded holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	if !c.excludeHolidays {
		return false
	}
	lt := t.In(c.loc)
	if _, ok := c.holidays[lt.Format(domain.DateLayout)]; ok {
		return true
	}
	_, ok := c.recurring[lt.Format("01-02")]
	return ok
}

func (c *Calendar) windowsOn(day time.Time) []window {
	if c.IsHoliday(day) {
		return nil
	}
	return c.days[day.Weekday()]
}

// bounds converts a window on the given local midnight to absolute instants.
func (c *Calendar) bounds(day time.Time, w window) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, w.start/60, w.start%60, 0, 0, c.loc)
	end := time.Date(y, m, d, w.end/60, w.end%60, 0, 0, c.loc)
	return start, end
}

// IsWorkingInstant reports whether t falls inside a working window.
func (c *Calendar) IsWorkingInstant(t time.Time) bool {
	day := c.StartOfDay(t)
	for _, w := range c.windowsOn(day) {
		start, end := c.bounds(day, w)
		if !t.Before(start) && t.Before(end) {
			return true
		}
	}
	return false
}

// NextWorkingInstant returns the first working instant at or after t.
func (c *Calendar) NextWorkingInstant(t time.Time) (time.Time, error) {
	t = t.In(c.loc)
	day := c.StartOfDay(t)
	for idle := 0; idle <= maxIdleDays; idle++ {
		for _, w := range c.windowsOn(day) {
			start, end := c.bounds(day, w)
			if !t.Before(end) {
				continue
			}
			if t.After(start) {
				return t, nil
			}
			return start, nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, domain.ErrNoWorkingTime
}

// Advance moves t forward by the given number of working minutes.
// Zero minutes returns t unchanged; a result may land exactly on a window end.
func (c *Calendar) Advance(t time.Time, minutes int) (time.Time, error) {
	if minutes < 0 {
		return time.Time{}, fmt.Errorf("%w: %d minutes", domain.ErrInvalidDuration, minutes)
	}
	if minutes == 0 {
		return t, nil
	}

	remaining := time.Duration(minutes) * time.Minute
	cursor := t.In(c.loc)
	day := c.StartOfDay(cursor)
	idle := 0
	for {
		windows := c.windowsOn(day)
		worked := false
		for _, w := range windows {
			start, end := c.bounds(day, w)
			from := start
			if cursor.After(from) {
				from = cursor
			}
			if !from.Before(end) {
				continue
			}
			worked = true
			available := end.Sub(from)
			if remaining <= available {
				return from.Add(remaining), nil
			}
			remaining -= available
		}
		if worked {
			idle = 0
		} else {
			idle++
			if idle > maxIdleDays {
				return time.Time{}, domain.ErrNoWorkingTime
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}

// WorkingMinutesBetween counts working minutes in [from,to), rounded to the nearest minute.
func (c *Calendar) WorkingMinutesBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	var total time.Duration
	last := c.StartOfDay(to)
	for day := c.StartOfDay(from); !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, w := range c.windowsOn(day) {
			start, end := c.bounds(day, w)
			if start.Before(from) {
				start = from
			}
			if end.After(to) {
				end = to
			}
			if end.After(start) {
				total += end.Sub(start)
			}
		}
	}
	return int(math.Round(total.Minutes()))
}
