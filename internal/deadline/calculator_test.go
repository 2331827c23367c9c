package deadline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/deadline-engine/internal/calendar"
	"github.com/spec-kit/deadline-engine/internal/domain"
)

var pht = time.FixedZone("PHT", 8*60*60)

func june(day, hour, minute int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, 0, 0, pht)
}

func newCalculator(t *testing.T, now time.Time) *Calculator {
	t.Helper()
	cal, err := calendar.Compile(&domain.CalendarProfile{
		StandardHours:   domain.ClockRange{Start: "08:00", End: "17:00"},
		ExcludeWeekends: true,
	}, pht)
	require.NoError(t, err)
	return NewCalculator(cal, WithClock(func() time.Time { return now }), WithAtRiskMinutes(60))
}

func TestComputeDueDate(t *testing.T) {
	calc := newCalculator(t, june(3, 9, 0))

	due, err := calc.ComputeDueDate(june(3, 9, 0), 480, true)
	require.NoError(t, err)
	assert.True(t, due.Equal(june(3, 17, 0)))

	due, err = calc.ComputeDueDate(june(3, 9, 0), 480, false)
	require.NoError(t, err)
	assert.True(t, due.Equal(june(3, 17, 0)))

	due, err = calc.ComputeDueDate(june(7, 16, 0), 120, false)
	require.NoError(t, err)
	assert.True(t, due.Equal(june(7, 18, 0)))

	_, err = calc.ComputeDueDate(june(3, 9, 0), -5, true)
	assert.True(t, errors.Is(err, domain.ErrInvalidDuration))
}

func TestStopAndResume_PreservesRemainingWorkingTime(t *testing.T) {
	due := june(3, 17, 0)

	stoppedAt := newCalculator(t, june(3, 13, 0))
	remaining := stoppedAt.RemainingMinutes(due, true)
	assert.Equal(t, 240, remaining)

	resumedAt := newCalculator(t, june(5, 9, 0))
	newDue, err := resumedAt.RecomputeAfterResume(remaining, true)
	require.NoError(t, err)
	assert.True(t, newDue.Equal(june(5, 13, 0)), "got %s", newDue)
	assert.Equal(t, remaining, resumedAt.RemainingMinutes(newDue, true))
}

func TestRemainingMinutes_NeverNegative(t *testing.T) {
	calc := newCalculator(t, june(4, 9, 0))

	assert.Equal(t, 0, calc.RemainingMinutes(june(3, 17, 0), true))
	assert.Equal(t, 0, calc.RemainingMinutes(june(3, 17, 0), false))
}

func TestRemainingMinutes_WallClockIgnoresCalendar(t *testing.T) {
	calc := newCalculator(t, june(7, 16, 0))

	assert.Equal(t, 60, calc.RemainingMinutes(june(10, 9, 0), true))
	assert.Equal(t, 65*60, calc.RemainingMinutes(june(10, 9, 0), false))
}

func TestHealth(t *testing.T) {
	calc := newCalculator(t, june(3, 15, 0))

	assert.Equal(t, HealthOnTrack, calc.Health(june(4, 15, 0), true))
	assert.Equal(t, HealthAtRisk, calc.Health(june(3, 15, 45), true))
	assert.Equal(t, HealthBreached, calc.Health(june(3, 14, 0), true))
	assert.Equal(t, HealthBreached, calc.Health(june(3, 15, 0), false))
}

func TestMinutesUntilDue(t *testing.T) {
	calc := newCalculator(t, june(3, 15, 0))

	assert.Equal(t, 30, calc.MinutesUntilDue(june(3, 15, 30)))
	assert.Equal(t, -90, calc.MinutesUntilDue(june(3, 13, 30)))
}

func TestFormatMinutes(t *testing.T) {
	cases := map[int]string{
		0:   "0 minutes",
		1:   "1 minute",
		45:  "45 minutes",
		60:  "1 hour",
		61:  "1 hour and 1 minute",
		135: "2 hours and 15 minutes",
		240: "4 hours",
		-3:  "0 minutes",
	}
	for minutes, want := range cases {
		assert.Equal(t, want, FormatMinutes(minutes), "minutes=%d", minutes)
	}
}
