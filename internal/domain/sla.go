package domain

// EscalationTiming says whether a level fires before or after the due date.
type EscalationTiming string

const (
	EscalationBefore EscalationTiming = "BEFORE"
	EscalationAfter  EscalationTiming = "AFTER"
)

// EscalationLevel is one of up to four tiers on an SLA.
type EscalationLevel struct {
	Level         int
	Enabled       bool
	Targets       []string
	Timing        EscalationTiming
	OffsetMinutes int
}

// ShouldFire reports whether the level is due given the signed minutes until the deadline.
func (l EscalationLevel) ShouldFire(minutesUntilDue int) bool {
	if !l.Enabled {
		return false
	}
	switch l.Timing {
	case EscalationBefore:
		return minutesUntilDue <= l.OffsetMinutes
	case EscalationAfter:
		return -minutesUntilDue >= l.OffsetMinutes
	}
	return false
}

// SLADefinition is read-only configuration owned by the service desk.
type SLADefinition struct {
	ID                   string
	Name                 string
	Days                 int
	Hours                int
	Minutes              int
	OperationalHoursOnly bool
	Escalations          []EscalationLevel
}

// DurationMinutes normalizes the day/hour/minute triple to minutes.
func (s SLADefinition) DurationMinutes() int {
	return s.Days*24*60 + s.Hours*60 + s.Minutes
}

// DefaultSLAs are the built-in resolution targets per priority, used when a
// ticket is attached without an explicit SLA. Durations are wall-clock hours.
func DefaultSLAs() map[TicketPriority]SLADefinition {
	return map[TicketPriority]SLADefinition{
		TicketPriorityUrgent: {ID: "default-urgent", Name: "Default urgent", Hours: 24},
		TicketPriorityHigh:   {ID: "default-high", Name: "Default high", Hours: 72},
		TicketPriorityMedium: {ID: "default-medium", Name: "Default medium", Hours: 168},
		TicketPriorityLow:    {ID: "default-low", Name: "Default low", Hours: 336},
	}
}
