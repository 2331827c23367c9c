package domain

import "time"

// ClockRange is a wall-clock interval within a day, "HH:MM" on both ends.
type ClockRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// DaySchedule overrides the standard hours for one weekday.
type DaySchedule struct {
	Enabled bool         `yaml:"enabled"`
	Start   string       `yaml:"start"`
	End     string       `yaml:"end"`
	Breaks  []ClockRange `yaml:"breaks"`
}

// Holiday is a non-working calendar date. Recurring holidays match on month and day.
type Holiday struct {
	Date      string `yaml:"date"`
	Name      string `yaml:"name"`
	Recurring bool   `yaml:"recurring"`
}

// CalendarProfile is the operational-hours configuration.
type CalendarProfile struct {
	Name            string                 `yaml:"name"`
	Timezone        string                 `yaml:"timezone"`
	RoundTheClock   bool                   `yaml:"round_the_clock"`
	StandardHours   ClockRange             `yaml:"standard_hours"`
	Breaks          []ClockRange           `yaml:"breaks"`
	Days            map[string]DaySchedule `yaml:"days"`
	Holidays        []Holiday              `yaml:"holidays"`
	ExcludeWeekends bool                   `yaml:"exclude_weekends"`
	ExcludeHolidays bool                   `yaml:"exclude_holidays"`
}

// DateLayout is the calendar-date format used for windows and holidays.
const DateLayout = "2006-01-02"

// WeekdayKey maps a weekday to its profile key.
func WeekdayKey(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}
