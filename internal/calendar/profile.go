package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// Compile validates a profile and builds a Calendar from it. A nil profile
// yields round-the-clock working time with no exclusions in loc.
func Compile(profile *domain.CalendarProfile, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	if profile == nil {
		return RoundTheClock(loc), nil
	}
	if profile.Timezone != "" {
		tz, err := time.LoadLocation(profile.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", domain.ErrInvalidProfile, profile.Timezone, err)
		}
		loc = tz
	}

	c := &Calendar{
		loc:             loc,
		excludeHolidays: profile.ExcludeHolidays,
		holidays:        make(map[string]struct{}),
		recurring:       make(map[string]struct{}),
	}

	for _, h := range profile.Holidays {
		date, err := time.ParseInLocation(domain.DateLayout, h.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: holiday %q: %v", domain.ErrInvalidProfile, h.Date, err)
		}
		if h.Recurring {
			c.recurring[date.Format("01-02")] = struct{}{}
			continue
		}
		c.holidays[date.Format(domain.DateLayout)] = struct{}{}
	}

	anyWindow := false
	for d := time.Sunday; d <= time.Saturday; d++ {
		if profile.ExcludeWeekends && (d == time.Saturday || d == time.Sunday) {
			continue
		}
		windows, err := compileDay(profile, d)
		if err != nil {
			return nil, err
		}
		c.days[d] = windows
		if len(windows) > 0 {
			anyWindow = true
		}
	}
	if !anyWindow {
		return nil, fmt.Errorf("%w: no working windows configured", domain.ErrInvalidProfile)
	}
	return c, nil
}

func compileDay(profile *domain.CalendarProfile, d time.Weekday) ([]window, error) {
	if profile.RoundTheClock {
		return []window{{start: 0, end: minutesPerDay}}, nil
	}

	hours := profile.StandardHours
	breaks := profile.Breaks
	if override, ok := profile.Days[domain.WeekdayKey(d)]; ok {
		if !override.Enabled {
			return nil, nil
		}
		if override.Start != "" {
			hours.Start = override.Start
		}
		if override.End != "" {
			hours.End = override.End
		}
		if override.Breaks != nil {
			breaks = override.Breaks
		}
	}

	base, err := parseRange(hours)
	if err != nil {
		return nil, fmt.Errorf("%w: %s hours: %v", domain.ErrInvalidProfile, domain.WeekdayKey(d), err)
	}

	cuts := make([]window, 0, len(breaks))
	for _, b := range breaks {
		w, err := parseRange(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %s break: %v", domain.ErrInvalidProfile, domain.WeekdayKey(d), err)
		}
		cuts = append(cuts, w)
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })
	for i := 1; i < len(cuts); i++ {
		if cuts[i].start < cuts[i-1].end {
			return nil, fmt.Errorf("%w: %s breaks overlap", domain.ErrInvalidProfile, domain.WeekdayKey(d))
		}
	}

	return subtract(base, cuts), nil
}

// subtract removes sorted, disjoint cuts from base.
func subtract(base window, cuts []window) []window {
	result := []window{}
	cursor := base.start
	for _, cut := range cuts {
		if cut.end <= cursor || cut.start >= base.end {
			continue
		}
		if cut.start > cursor {
			result = append(result, window{start: cursor, end: cut.start})
		}
		if cut.end > cursor {
			cursor = cut.end
		}
	}
	if cursor < base.end {
		result = append(result, window{start: cursor, end: base.end})
	}
	return result
}

func parseRange(r domain.ClockRange) (window, error) {
	start, err := parseClock(r.Start)
	if err != nil {
		return window{}, err
	}
	end, err := parseClock(r.End)
	if err != nil {
		return window{}, err
	}
	if end <= start {
		return window{}, fmt.Errorf("range %s-%s ends before it starts", r.Start, r.End)
	}
	return window{start: start, end: end}, nil
}

// parseClock parses HH:MM into minutes of the day. 24:00 is accepted as an end.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
