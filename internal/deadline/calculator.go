// Package deadline computes due dates and remaining SLA time.
package deadline

import (
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/deadline-engine/internal/calendar"
	"github.com/spec-kit/deadline-engine/internal/domain"
)

// Health classifies how close a ticket is to its due date.
type Health string

const (
	HealthOnTrack  Health = "ON_TRACK"
	HealthAtRisk   Health = "AT_RISK"
	HealthBreached Health = "BREACHED"
)

// DefaultAtRiskMinutes is used when no threshold is configured.
const DefaultAtRiskMinutes = 60

// Calculator turns SLA durations into due dates.
type Calculator struct {
	cal    *calendar.Calendar
	now    func() time.Time
	atRisk int
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

// WithAtRiskMinutes sets the at-risk threshold.
func WithAtRiskMinutes(minutes int) Option {
	return func(c *Calculator) {
		if minutes > 0 {
			c.atRisk = minutes
		}
	}
}

// NewCalculator builds a calculator over the given calendar.
func NewCalculator(cal *calendar.Calendar, opts ...Option) *Calculator {
	c := &Calculator{cal: cal, now: time.Now, atRisk: DefaultAtRiskMinutes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current instant in the calendar's zone.
func (c *Calculator) Now() time.Time {
	return c.now().In(c.cal.Location())
}

// Calendar exposes the underlying calendar.
func (c *Calculator) Calendar() *calendar.Calendar {
	return c.cal
}

// ComputeDueDate returns start advanced by totalMinutes, counting only
// working time when operationalHoursOnly is set.
func (c *Calculator) ComputeDueDate(start time.Time, totalMinutes int, operationalHoursOnly bool) (time.Time, error) {
	if totalMinutes < 0 {
		return time.Time{}, fmt.Errorf("%w: %d minutes", domain.ErrInvalidDuration, totalMinutes)
	}
	if operationalHoursOnly {
		return c.cal.Advance(start, totalMinutes)
	}
	return start.Add(time.Duration(totalMinutes) * time.Minute), nil
}

// RecomputeAfterResume computes a fresh due date from now using the paused snapshot.
func (c *Calculator) RecomputeAfterResume(remainingMinutes int, operationalHoursOnly bool) (time.Time, error) {
	return c.ComputeDueDate(c.Now(), remainingMinutes, operationalHoursOnly)
}

// RemainingMinutes returns the non-negative minutes from now until due.
func (c *Calculator) RemainingMinutes(due time.Time, operationalHoursOnly bool) int {
	return c.remainingAt(c.Now(), due, operationalHoursOnly)
}

func (c *Calculator) remainingAt(now, due time.Time, operationalHoursOnly bool) int {
	if !due.After(now) {
		return 0
	}
	if operationalHoursOnly {
		return c.cal.WorkingMinutesBetween(now, due)
	}
	return int(math.Round(due.Sub(now).Minutes()))
}

// MinutesUntilDue is the signed wall-clock distance to due; negative once overdue.
func (c *Calculator) MinutesUntilDue(due time.Time) int {
	return int(math.Floor(due.Sub(c.Now()).Minutes()))
}

// Health classifies the due date against the at-risk threshold.
func (c *Calculator) Health(due time.Time, operationalHoursOnly bool) Health {
	now := c.Now()
	if !now.Before(due) {
		return HealthBreached
	}
	if c.remainingAt(now, due, operationalHoursOnly) <= c.atRisk {
		return HealthAtRisk
	}
	return HealthOnTrack
}
