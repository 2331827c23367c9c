package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusForApproval TicketStatus = "FOR_APPROVAL"
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusOnHold      TicketStatus = "ON_HOLD"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further deadline mutation is allowed.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusForApproval, TicketStatusOpen, TicketStatusOnHold,
		TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// MaxEscalationLevels is the number of escalation tiers an SLA can carry.
const MaxEscalationLevels = 4

// Ticket is the aggregate whose deadline the engine manages.
type Ticket struct {
	ID                   string
	ExternalKey          string
	RequesterID          string
	AssignedTechnicianID *string
	Title                string
	Status               TicketStatus
	Priority             TicketPriority

	SLAID                *string
	OperationalHoursOnly bool
	SLAMinutesTotal      *int
	SLAStartedAt         *time.Time
	DueAt                *time.Time
	RemainingMinutes     *int
	PauseReason          string
	PausedAt             *time.Time
	ResumedAt            *time.Time
	EscalationFiredAt    [MaxEscalationLevels]*time.Time

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
	ClosedAt   *time.Time
}

// HasSLA reports whether an SLA has been attached.
func (t *Ticket) HasSLA() bool {
	return t.SLAID != nil && *t.SLAID != ""
}

// EscalationFired reports whether the given 1-based level already fired.
func (t *Ticket) EscalationFired(level int) bool {
	if level < 1 || level > MaxEscalationLevels {
		return false
	}
	return t.EscalationFiredAt[level-1] != nil
}

// MarkEscalationFired records the firing time for a 1-based level.
func (t *Ticket) MarkEscalationFired(level int, at time.Time) {
	if level < 1 || level > MaxEscalationLevels {
		return
	}
	fired := at
	t.EscalationFiredAt[level-1] = &fired
}

// ValidateDeadline checks the relationship between status and the deadline fields.
func (t *Ticket) ValidateDeadline() error {
	switch {
	case t.Status == TicketStatusOpen && t.HasSLA() && t.DueAt == nil:
		return fmt.Errorf("%w: open ticket %s has an sla but no due date", ErrDeadlineInvariant, t.ID)
	case t.Status != TicketStatusOpen && t.DueAt != nil:
		return fmt.Errorf("%w: ticket %s is %s but has a due date", ErrDeadlineInvariant, t.ID, t.Status)
	case t.Status == TicketStatusOnHold && t.HasSLA() && (t.RemainingMinutes == nil || t.PausedAt == nil || t.PauseReason == ""):
		return fmt.Errorf("%w: paused ticket %s has no remaining snapshot", ErrDeadlineInvariant, t.ID)
	case t.Status != TicketStatusOnHold && t.RemainingMinutes != nil:
		return fmt.Errorf("%w: ticket %s is %s but has a remaining snapshot", ErrDeadlineInvariant, t.ID, t.Status)
	}
	return nil
}

// TicketFilter narrows ticket listings for sweeps.
type TicketFilter struct {
	Statuses       []TicketStatus
	WithDueDate    bool
	ResolvedBefore *time.Time
	AssignedTo     *string
	After          *TicketCursor
	Limit          int
}

// TicketCursor is the (created_at, id) position a listing resumes after.
type TicketCursor struct {
	CreatedAt time.Time
	ID        string
}
