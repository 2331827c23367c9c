package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// LoadProfile reads a calendar profile from a YAML file.
func LoadProfile(path string) (*domain.CalendarProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML calendar profile.
func ParseProfile(data []byte) (*domain.CalendarProfile, error) {
	var profile domain.CalendarProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProfile, err)
	}
	return &profile, nil
}

// Load builds the calendar for the deployment. An empty path means no
// profile is configured and every instant counts as working time.
func Load(path, timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if path == "" {
		return RoundTheClock(loc), nil
	}
	profile, err := LoadProfile(path)
	if err != nil {
		return nil, err
	}
	if profile.Timezone == "" {
		profile.Timezone = timezone
	}
	return Compile(profile, loc)
}
